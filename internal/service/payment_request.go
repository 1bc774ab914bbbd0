package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
)

// SystemActor is recorded as processedBy when no human closes a request.
const SystemActor = "system"

// DefaultDispatchClaimTimeout is how long a payout claim blocks re-dispatch
// when the channel call never recorded a ref.
const DefaultDispatchClaimTimeout = 10 * time.Minute

// PaymentRequestConfig holds the rules applied by PaymentRequestService.
type PaymentRequestConfig struct {
	Limits              policy.LimitPolicy
	Routing             policy.MethodRoutingPolicy
	MobileNumberPattern string
	AgentNumbers        map[domain.PaymentMethod]string
	DepositBonusEnabled bool

	// RequestRateLimit caps request creation per user per minute. Zero disables it.
	RequestRateLimit int
	SettlementSecret string

	// DispatchClaimTimeout bounds how long a claimed payout without a provider
	// ref waits before reconciliation dispatches it again.
	DispatchClaimTimeout time.Duration
}

// PaymentRequestService runs the deposit/withdrawal request lifecycle.
type PaymentRequestService struct {
	store     repository.Store
	rec       *ledger.Recorder
	gateway   *provider.Gateway
	bonuses   *BonusService
	cfg       PaymentRequestConfig
	mobile    *domain.MobileNumberValidator
	limiter   *guard.RateLimiter
	verifier  *provider.SettlementVerifier
	processed *guard.IdempotencyGuard
	observers ledger.Observers
	logger    *slog.Logger
	now       func() time.Time

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewPaymentRequestService creates a PaymentRequestService. gateway and
// bonuses may be nil, in which case payouts and deposit bonuses are skipped.
func NewPaymentRequestService(
	store repository.Store,
	rec *ledger.Recorder,
	gateway *provider.Gateway,
	bonuses *BonusService,
	cfg PaymentRequestConfig,
	logger *slog.Logger,
) (*PaymentRequestService, error) {
	mobile, err := domain.NewMobileNumberValidator(cfg.MobileNumberPattern)
	if err != nil {
		return nil, err
	}
	return &PaymentRequestService{
		store:     store,
		rec:       rec,
		gateway:   gateway,
		bonuses:   bonuses,
		cfg:       cfg,
		mobile:    mobile,
		limiter:   guard.NewRateLimiter(cfg.RequestRateLimit, time.Minute),
		verifier:  provider.NewSettlementVerifier(cfg.SettlementSecret),
		processed: guard.NewIdempotencyGuard(24 * time.Hour),
		logger:    logger,
		now:       time.Now,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}, nil
}

// WithObservers registers observers notified after each commit.
func (s *PaymentRequestService) WithObservers(obs ...ledger.Observer) *PaymentRequestService {
	s.observers = append(s.observers, obs...)
	return s
}

// WithClock replaces the time source.
func (s *PaymentRequestService) WithClock(now func() time.Time) *PaymentRequestService {
	s.now = now
	return s
}

func (s *PaymentRequestService) newRequestID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

// Create validates and records a new payment request. A withdrawal moves its
// amount into the locked balance before the request is stored. Every request
// gets a linked pending transaction.
func (s *PaymentRequestService) Create(ctx context.Context, p domain.CreatePaymentRequestParams) (*domain.PaymentRequest, error) {
	if p.UserID == uuid.Nil {
		return nil, domain.ErrValidation("user id is required")
	}
	if err := s.limiter.Allow(ctx, "payment_request:"+p.UserID.String()); err != nil {
		return nil, err
	}
	if p.Type != domain.RequestDeposit && p.Type != domain.RequestWithdrawal {
		return nil, domain.ErrValidation(fmt.Sprintf("unknown request type %q", p.Type))
	}
	if route := policy.EvaluateMethodRoute(s.cfg.Routing, p.Method, p.Type); !route.Allowed {
		return nil, domain.ErrValidation(route.Reason)
	}
	if err := domain.ValidatePositiveAmount(p.Amount); err != nil {
		return nil, err
	}

	var user *domain.UserProfile
	switch p.Type {
	case domain.RequestDeposit:
		if err := policy.EvaluateDeposit(s.cfg.Limits, p.Amount).Err(); err != nil {
			return nil, err
		}
	case domain.RequestWithdrawal:
		var err error
		user, err = s.profile(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		if err := policy.EvaluateWithdrawalAmount(s.cfg.Limits, user, p.Method, p.Amount).Err(); err != nil {
			return nil, err
		}
	}

	externalID, err := domain.ValidateExternalTxID(p.ExternalTxID)
	if err != nil {
		return nil, err
	}
	sender, err := s.senderAccount(p.Method, p.SenderNumber)
	if err != nil {
		return nil, err
	}

	receiver := s.cfg.AgentNumbers[p.Method]
	destination := ""
	if p.Type == domain.RequestWithdrawal {
		verified, ok := user.VerifiedNumberFor(p.Method)
		if !ok {
			return nil, domain.ErrValidation(fmt.Sprintf("no verified %s number on file", p.Method))
		}
		registered, err := s.senderAccount(p.Method, verified)
		if err != nil || registered != sender {
			return nil, domain.ErrValidation(fmt.Sprintf("withdrawal number must match your registered %s number", p.Method))
		}
		receiver = sender
		destination = sender
	}

	now := s.now()
	req := &domain.PaymentRequest{
		ID:                 s.newRequestID(),
		UserID:             p.UserID,
		Type:               p.Type,
		Method:             p.Method,
		Amount:             domain.Money(p.Amount),
		SenderNumber:       sender,
		ReceiverNumber:     receiver,
		ExternalTxID:       externalID,
		ProofRef:           p.ProofRef,
		Status:             domain.RequestPending,
		UserNote:           strings.TrimSpace(p.Note),
		DestinationAccount: destination,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var posting *ledger.Posting
	err = s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		dup, err := r.Requests.FindPendingByExternalTxID(ctx, externalID, p.Method)
		if err != nil {
			return fmt.Errorf("find pending request: %w", err)
		}
		if dup != nil {
			return domain.ErrDuplicateTransaction(externalID, p.Method)
		}

		amount := req.Amount
		if req.Type == domain.RequestWithdrawal {
			w, err := s.rec.LockWallet(ctx, r, req.UserID)
			if err != nil {
				return err
			}
			if w.Balance.LessThan(req.Amount) {
				return domain.ErrInsufficientFunds()
			}
			if elig := policy.EvaluateWithdrawal(s.cfg.Limits, user, user.Wagered(w), req.Amount); !elig.Allowed {
				return domain.ErrValidation(elig.Reason)
			}
			if _, err := s.rec.LockFunds(ctx, r, req.UserID, req.Amount, req.ID); err != nil {
				return err
			}
			amount = amount.Neg()
		}

		method := req.Method
		posting, err = s.rec.OpenPending(ctx, r, ledger.Entry{
			UserID:      req.UserID,
			Type:        req.Type.TransactionType(),
			Amount:      amount,
			Method:      &method,
			Description: describeRequest(req),
			IDPrefix:    strings.ToUpper(string(req.Type)),
			Metadata: domain.Metadata{
				"paymentRequestId":  req.ID,
				"userTransactionId": req.ExternalTxID,
				"senderNumber":      req.SenderNumber,
				"receiverNumber":    req.ReceiverNumber,
			},
		})
		if err != nil {
			return err
		}
		req.TransactionID = posting.Transaction.ID
		req.Currency = posting.Wallet.Currency

		if err := r.Requests.Create(ctx, req); err != nil {
			if errors.Is(err, repository.ErrPendingDuplicate) {
				return domain.ErrDuplicateTransaction(externalID, p.Method)
			}
			return fmt.Errorf("create payment request: %w", err)
		}
		return r.Outbox.Insert(ctx, domain.NewRequestStatusChangedEvent(req, ""))
	})
	if err != nil {
		return nil, wrapErr("create payment request", err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("payment request created",
		"request_id", req.ID,
		"user_id", req.UserID,
		"type", req.Type,
		"method", req.Method,
		"amount", req.Amount.StringFixed(2),
	)
	return req, nil
}

// Approve moves a pending request forward. A deposit is credited and
// completed in the same unit of work. A withdrawal goes to processing and its
// payout is started with the channel once the unit commits.
func (s *PaymentRequestService) Approve(ctx context.Context, id, adminID, note string) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return domain.ErrNotPending(req.ID, req.Status)
		}

		now := s.now()
		req.AdminNotes.ApprovedBy = adminID
		req.AdminNotes.ApprovedAt = &now
		if note != "" {
			req.AdminNotes.Note = note
		}
		if err := s.transition(ctx, r, req, domain.RequestApproved); err != nil {
			return err
		}

		meta := domain.Metadata{"approvedBy": adminID}
		if req.Type == domain.RequestDeposit {
			posting, err = s.rec.ApplyPending(ctx, r, req.UserID, req.TransactionID, meta)
			if err != nil {
				return err
			}
			req.AdminNotes.ProcessedBy = SystemActor
			req.AdminNotes.ProcessedAt = &now
			return s.transition(ctx, r, req, domain.RequestCompleted)
		}

		if err := r.Transactions.Annotate(ctx, req.TransactionID, meta); err != nil {
			return fmt.Errorf("annotate transaction: %w", err)
		}
		return s.transition(ctx, r, req, domain.RequestProcessing)
	})
	if err != nil {
		return nil, wrapErr("approve payment request", err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("payment request approved", "request_id", req.ID, "admin_id", adminID, "status", req.Status)

	if req.Type == domain.RequestDeposit {
		s.grantDepositBonus(ctx, req)
		return req, nil
	}
	if s.gateway != nil {
		dispatched, err := s.DispatchWithdrawal(ctx, req.ID)
		if err != nil {
			// Left in processing without a provider ref; reconciliation retries.
			s.logger.Warn("payout dispatch failed", "request_id", req.ID, "error", err)
			return req, nil
		}
		req = dispatched
	}
	return req, nil
}

func (s *PaymentRequestService) grantDepositBonus(ctx context.Context, req *domain.PaymentRequest) {
	if !s.cfg.DepositBonusEnabled || s.bonuses == nil {
		return
	}
	if _, err := s.bonuses.GiveDepositBonus(ctx, req.UserID, req.Amount, req.ID); err != nil {
		s.logger.Error("deposit bonus failed", "request_id", req.ID, "user_id", req.UserID, "error", err)
	}
}

// Reject closes a pending request. A withdrawal's locked funds return to the
// available balance and the linked transaction fails with the reason.
func (s *PaymentRequestService) Reject(ctx context.Context, id, adminID, reason string) (*domain.PaymentRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrValidation("rejection reason is required")
	}

	var req *domain.PaymentRequest
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return domain.ErrNotPending(req.ID, req.Status)
		}

		posting, err = s.unwind(ctx, r, req, domain.TxStatusFailed, domain.Metadata{
			"rejectionReason": reason,
			"rejectedBy":      adminID,
		})
		if err != nil {
			return err
		}
		now := s.now()
		req.AdminNotes.RejectedBy = adminID
		req.AdminNotes.RejectedAt = &now
		req.AdminNotes.RejectionReason = reason
		return s.transition(ctx, r, req, domain.RequestRejected)
	})
	if err != nil {
		return nil, wrapErr("reject payment request", err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("payment request rejected", "request_id", req.ID, "admin_id", adminID, "reason", reason)
	return req, nil
}

// Cancel abandons a request that has not completed. A withdrawal whose
// payout was already handed to a channel cannot be cancelled.
func (s *PaymentRequestService) Cancel(ctx context.Context, id, actor string) (*domain.PaymentRequest, error) {
	return s.cancel(ctx, id, actor, nil)
}

// CancelForUser cancels one of the user's own requests. Requests owned by
// someone else are reported as not found.
func (s *PaymentRequestService) CancelForUser(ctx context.Context, userID uuid.UUID, id string) (*domain.PaymentRequest, error) {
	return s.cancel(ctx, id, "user:"+userID.String(), &userID)
}

func (s *PaymentRequestService) cancel(ctx context.Context, id, actor string, owner *uuid.UUID) (*domain.PaymentRequest, error) {
	var req *domain.PaymentRequest
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if owner != nil && req.UserID != *owner {
			return domain.ErrNotFound("payment request", id)
		}
		if !domain.CanTransition(req.Status, domain.RequestCancelled) {
			return domain.ErrNotPending(req.ID, req.Status)
		}
		if req.PayoutClaimed() {
			return domain.ErrConflict(fmt.Sprintf("payment request %s already has a payout in flight", req.ID))
		}

		posting, err = s.unwind(ctx, r, req, domain.TxStatusCancelled, domain.Metadata{"cancelledBy": actor})
		if err != nil {
			return err
		}
		now := s.now()
		req.AdminNotes.ProcessedBy = actor
		req.AdminNotes.ProcessedAt = &now
		return s.transition(ctx, r, req, domain.RequestCancelled)
	})
	if err != nil {
		return nil, wrapErr("cancel payment request", err)
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("payment request cancelled", "request_id", req.ID, "by", actor)
	return req, nil
}

// SettleWithdrawal pays out a processing withdrawal once the channel has
// confirmed the funds were sent. Settling a completed request is a no-op.
func (s *PaymentRequestService) SettleWithdrawal(ctx context.Context, id, processedBy string) (*domain.PaymentRequest, error) {
	if processedBy == "" {
		processedBy = SystemActor
	}

	var req *domain.PaymentRequest
	var posting *ledger.Posting
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if req.Type != domain.RequestWithdrawal {
			return domain.ErrConflict(fmt.Sprintf("payment request %s is not a withdrawal", req.ID))
		}
		if req.Status == domain.RequestCompleted {
			return nil
		}
		if req.Status != domain.RequestProcessing {
			return domain.ErrConflict(fmt.Sprintf("payment request %s is %s, expected %s", req.ID, req.Status, domain.RequestProcessing))
		}

		posting, err = s.rec.SettleLocked(ctx, r, req.UserID, req.TransactionID, domain.Metadata{"processedBy": processedBy})
		if err != nil {
			return err
		}
		now := s.now()
		req.AdminNotes.ProcessedBy = processedBy
		req.AdminNotes.ProcessedAt = &now
		return s.transition(ctx, r, req, domain.RequestCompleted)
	})
	if err != nil {
		return nil, wrapErr("settle withdrawal", err)
	}
	if posting == nil {
		s.logger.Info("withdrawal already settled", "request_id", req.ID)
		return req, nil
	}

	s.observers.Notify(ctx, posting)
	s.logger.Info("withdrawal settled",
		"request_id", req.ID,
		"user_id", req.UserID,
		"amount", req.Amount.StringFixed(2),
		"processed_by", processedBy,
	)
	return req, nil
}

// FailWithdrawal unwinds a processing withdrawal the channel could not pay
// out. Failing a request that was already unwound is a no-op.
func (s *PaymentRequestService) FailWithdrawal(ctx context.Context, id, reason, reportedBy string) (*domain.PaymentRequest, error) {
	if reportedBy == "" {
		reportedBy = SystemActor
	}
	if reason == "" {
		reason = "payout failed"
	}

	var req *domain.PaymentRequest
	var posting *ledger.Posting
	unwound := false
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if req.Type != domain.RequestWithdrawal {
			return domain.ErrConflict(fmt.Sprintf("payment request %s is not a withdrawal", req.ID))
		}
		if req.Status == domain.RequestRejected || req.Status == domain.RequestCancelled {
			return nil
		}
		if req.Status != domain.RequestProcessing {
			return domain.ErrConflict(fmt.Sprintf("payment request %s is %s, expected %s", req.ID, req.Status, domain.RequestProcessing))
		}

		posting, err = s.unwind(ctx, r, req, domain.TxStatusFailed, domain.Metadata{
			"rejectionReason": reason,
			"rejectedBy":      reportedBy,
		})
		if err != nil {
			return err
		}
		now := s.now()
		req.AdminNotes.RejectedBy = reportedBy
		req.AdminNotes.RejectedAt = &now
		req.AdminNotes.RejectionReason = reason
		unwound = true
		return s.transition(ctx, r, req, domain.RequestRejected)
	})
	if err != nil {
		return nil, wrapErr("fail withdrawal", err)
	}
	if !unwound {
		return req, nil
	}

	s.observers.Notify(ctx, posting)
	s.logger.Warn("withdrawal failed", "request_id", req.ID, "user_id", req.UserID, "reason", reason)
	return req, nil
}

// DispatchWithdrawal hands a processing withdrawal to its channel and stores
// the returned provider ref. The payout is claimed in its own unit of work
// before the channel is called; from then on the request can no longer be
// cancelled. Requests that carry a ref, hold a claim younger than the claim
// timeout, or are no longer processing are returned unchanged.
//
// The request id is the channel's idempotency key, so re-dispatching an
// expired claim cannot pay twice.
func (s *PaymentRequestService) DispatchWithdrawal(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	if s.gateway == nil {
		return nil, domain.ErrInternal("dispatch withdrawal", errors.New("no payment gateway configured"))
	}

	var req *domain.PaymentRequest
	claimed := false
	err := s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		var err error
		req, err = s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		if !s.dispatchable(req) {
			return nil
		}
		now := s.now()
		req.DispatchedAt = &now
		req.UpdatedAt = now
		if err := r.Requests.Update(ctx, req); err != nil {
			return fmt.Errorf("claim payout: %w", err)
		}
		claimed = true
		return nil
	})
	if err != nil {
		return nil, wrapErr("claim payout", err)
	}
	if !claimed {
		return req, nil
	}

	ref, err := s.gateway.InitiateWithdrawal(ctx, req.Method, req.Amount, req.DestinationAccount, req.ID)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, r repository.Repos) error {
		locked, err := s.lockRequest(ctx, r, id)
		if err != nil {
			return err
		}
		req = locked
		if req.Status != domain.RequestProcessing {
			s.logger.Warn("payout started for a request that moved on",
				"request_id", req.ID, "status", req.Status, "provider_ref", ref)
			return nil
		}
		if req.ProviderRef != nil {
			return nil
		}
		req.ProviderRef = &ref
		req.UpdatedAt = s.now()
		if err := r.Requests.Update(ctx, req); err != nil {
			return fmt.Errorf("update payment request: %w", err)
		}
		return r.Transactions.Annotate(ctx, req.TransactionID, domain.Metadata{"providerRef": ref})
	})
	if err != nil {
		return nil, wrapErr("record payout", err)
	}

	s.logger.Info("payout dispatched", "request_id", req.ID, "provider_ref", ref)
	return req, nil
}

// dispatchable reports whether req may be claimed for a payout now.
func (s *PaymentRequestService) dispatchable(req *domain.PaymentRequest) bool {
	if req.Status != domain.RequestProcessing || req.ProviderRef != nil {
		return false
	}
	return req.DispatchedAt == nil || s.now().Sub(*req.DispatchedAt) >= s.claimTimeout()
}

func (s *PaymentRequestService) claimTimeout() time.Duration {
	if s.cfg.DispatchClaimTimeout > 0 {
		return s.cfg.DispatchClaimTimeout
	}
	return DefaultDispatchClaimTimeout
}

// Checkout starts a channel checkout for a deposit the user is about to make.
// Nothing is recorded; the user still submits a request with the channel's
// transaction id.
func (s *PaymentRequestService) Checkout(ctx context.Context, userID uuid.UUID, method domain.PaymentMethod, amount decimal.Decimal) (*provider.Checkout, error) {
	if s.gateway == nil {
		return nil, domain.ErrInternal("deposit checkout", errors.New("no payment gateway configured"))
	}
	if route := policy.EvaluateMethodRoute(s.cfg.Routing, method, domain.RequestDeposit); !route.Allowed {
		return nil, domain.ErrValidation(route.Reason)
	}
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, err
	}
	if err := policy.EvaluateDeposit(s.cfg.Limits, amount).Err(); err != nil {
		return nil, err
	}
	return s.gateway.InitiateDeposit(ctx, method, amount, userID.String()+":"+s.newRequestID())
}

// HandleSettlementWebhook verifies a signed settlement event and applies it.
// Each event id is applied at most once per retention window; redelivery of
// an applied event is acknowledged without side effects.
func (s *PaymentRequestService) HandleSettlementWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	event, err := s.verifier.Verify(payload, sigHeader)
	if err != nil {
		return domain.ErrUnauthorized(fmt.Sprintf("webhook verification failed: %v", err))
	}

	key := "settlement:" + event.ID
	if res := s.processed.Check(ctx, key); !res.Allowed {
		s.logger.Info("duplicate settlement event", "event_id", event.ID, "request_id", event.RequestID)
		return nil
	}

	if err := s.applySettlement(ctx, event); err != nil {
		s.processed.Remove(key)
		return err
	}
	return nil
}

func (s *PaymentRequestService) applySettlement(ctx context.Context, event *provider.SettlementEvent) error {
	req, err := s.Get(ctx, event.RequestID)
	if err != nil {
		return err
	}
	if event.ProviderRef != "" && req.ProviderRef != nil && *req.ProviderRef != event.ProviderRef {
		return domain.ErrConflict(fmt.Sprintf("provider ref %s does not match request %s", event.ProviderRef, req.ID))
	}

	by := string(req.Method)
	switch event.Status {
	case provider.SettlementCompleted:
		_, err = s.SettleWithdrawal(ctx, req.ID, by)
	case provider.SettlementFailed:
		_, err = s.FailWithdrawal(ctx, req.ID, event.Reason, by)
	default:
		err = domain.ErrValidation("unknown settlement status " + event.Status)
	}
	return err
}

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked    int         `json:"checked"`
	Dispatched int         `json:"dispatched"`
	Settled    int         `json:"settled"`
	Failed     int         `json:"failed"`
	Waiting    int         `json:"waiting"`
	Errors     int         `json:"errors"`
	Touched    []uuid.UUID `json:"touched"`
}

// ReconcileProcessing walks every processing withdrawal, pageSize rows at a
// time: requests with no provider ref and no live claim are dispatched, the
// rest are settled or failed according to the channel's answer. A request is
// never failed without the channel saying so.
func (s *PaymentRequestService) ReconcileProcessing(ctx context.Context, pageSize int) (*ReconcileReport, error) {
	if s.gateway == nil {
		return nil, domain.ErrInternal("reconcile withdrawals", errors.New("no payment gateway configured"))
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	pageSize = min(pageSize, repository.MaxListLimit)

	report := &ReconcileReport{}
	touched := make(map[uuid.UUID]struct{})
	after := ""
	for ctx.Err() == nil {
		reqs, err := s.store.Repos().Requests.ListByStatusAfter(ctx, domain.RequestProcessing, after, pageSize)
		if err != nil {
			return nil, domain.ErrInternal("list processing requests", err)
		}
		for i := range reqs {
			if ctx.Err() != nil {
				break
			}
			s.reconcileOne(ctx, &reqs[i], report, touched)
		}
		if len(reqs) < pageSize {
			break
		}
		after = reqs[len(reqs)-1].ID
	}

	for id := range touched {
		report.Touched = append(report.Touched, id)
	}
	return report, nil
}

func (s *PaymentRequestService) reconcileOne(ctx context.Context, req *domain.PaymentRequest, report *ReconcileReport, touched map[uuid.UUID]struct{}) {
	report.Checked++

	if req.ProviderRef == nil {
		if !s.dispatchable(req) {
			report.Waiting++
			return
		}
		out, err := s.DispatchWithdrawal(ctx, req.ID)
		if err != nil {
			report.Errors++
			s.logger.Warn("reconcile dispatch failed", "request_id", req.ID, "error", err)
			return
		}
		if out.ProviderRef == nil {
			report.Waiting++
			return
		}
		report.Dispatched++
		return
	}

	status, err := s.gateway.WithdrawalStatus(ctx, *req.ProviderRef)
	if err != nil {
		report.Errors++
		s.logger.Warn("reconcile status check failed", "request_id", req.ID, "error", err)
		return
	}
	switch status {
	case provider.PayoutCompleted:
		_, err = s.SettleWithdrawal(ctx, req.ID, string(req.Method))
		if err == nil {
			report.Settled++
			touched[req.UserID] = struct{}{}
		}
	case provider.PayoutFailed:
		_, err = s.FailWithdrawal(ctx, req.ID, "provider reported payout failure", string(req.Method))
		if err == nil {
			report.Failed++
			touched[req.UserID] = struct{}{}
		}
	default:
		report.Waiting++
	}
	if err != nil {
		report.Errors++
		s.logger.Error("reconcile apply failed", "request_id", req.ID, "error", err)
	}
}

// ListPending returns the admin review queue, oldest first.
func (s *PaymentRequestService) ListPending(ctx context.Context, limit int) ([]domain.PaymentRequest, error) {
	reqs, err := s.store.Repos().Requests.ListByStatus(ctx, domain.RequestPending, limit)
	if err != nil {
		return nil, domain.ErrInternal("list pending requests", err)
	}
	return reqs, nil
}

// ListForUser returns a user's requests, newest first.
func (s *PaymentRequestService) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.PaymentRequest, error) {
	reqs, err := s.store.Repos().Requests.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, domain.ErrInternal("list user requests", err)
	}
	return reqs, nil
}

// Get returns a request by id.
func (s *PaymentRequestService) Get(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	req, err := s.store.Repos().Requests.Get(ctx, id)
	if err != nil {
		return nil, domain.ErrInternal("get payment request", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("payment request", id)
	}
	return req, nil
}

// GetForUser returns a request only if userID owns it.
func (s *PaymentRequestService) GetForUser(ctx context.Context, userID uuid.UUID, id string) (*domain.PaymentRequest, error) {
	req, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, domain.ErrNotFound("payment request", id)
	}
	return req, nil
}

// unwind releases a withdrawal hold and closes the linked transaction with
// status. Deposits hold nothing, so only the transaction changes.
func (s *PaymentRequestService) unwind(ctx context.Context, r repository.Repos, req *domain.PaymentRequest, status domain.TransactionStatus, meta domain.Metadata) (*ledger.Posting, error) {
	var w *domain.Wallet
	if req.Type == domain.RequestWithdrawal {
		var err error
		w, err = s.rec.UnlockFunds(ctx, r, req.UserID, req.Amount, req.ID)
		if err != nil {
			return nil, err
		}
	}
	tx, err := s.rec.FailPending(ctx, r, req.TransactionID, status, meta)
	if err != nil {
		return nil, err
	}
	return &ledger.Posting{Transaction: tx, Wallet: w}, nil
}

func (s *PaymentRequestService) lockRequest(ctx context.Context, r repository.Repos, id string) (*domain.PaymentRequest, error) {
	req, err := r.Requests.LockForUpdate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock payment request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("payment request", id)
	}
	return req, nil
}

// transition moves req to status, persists it and writes the status event.
func (s *PaymentRequestService) transition(ctx context.Context, r repository.Repos, req *domain.PaymentRequest, to domain.RequestStatus) error {
	from := req.Status
	if !domain.CanTransition(from, to) {
		return domain.ErrConflict(fmt.Sprintf("payment request %s cannot move from %s to %s", req.ID, from, to))
	}
	req.Status = to
	req.UpdatedAt = s.now()
	if err := r.Requests.Update(ctx, req); err != nil {
		return fmt.Errorf("update payment request: %w", err)
	}
	if err := r.Outbox.Insert(ctx, domain.NewRequestStatusChangedEvent(req, from)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (s *PaymentRequestService) profile(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	user, err := s.store.Repos().Users.GetProfile(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("get user profile", err)
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// senderAccount normalises mobile-money numbers; other methods carry an
// account or address that only has to be present.
func (s *PaymentRequestService) senderAccount(method domain.PaymentMethod, raw string) (string, error) {
	if method.IsMobileMoney() {
		n, err := s.mobile.Normalize(raw)
		if err != nil {
			return "", domain.ErrValidation("invalid mobile number format, use 01XXXXXXXXX")
		}
		return n, nil
	}
	account := strings.TrimSpace(raw)
	if account == "" {
		return "", domain.ErrValidation("sender account is required")
	}
	return account, nil
}

func describeRequest(req *domain.PaymentRequest) string {
	kind := "Deposit"
	if req.Type == domain.RequestWithdrawal {
		kind = "Withdrawal"
	}
	return fmt.Sprintf("%s via %s", kind, req.Method)
}
