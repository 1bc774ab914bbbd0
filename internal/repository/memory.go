package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/attaboy/walletcore/internal/domain"
)

// MemoryStore is an in-process Store. A single mutex serialises units of work;
// each one runs against a private copy of the state that replaces the committed
// state only when fn returns nil.
//
// Do not call Repos() from inside InTx: the mutex is not reentrant.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	wallets   map[uuid.UUID]domain.Wallet // keyed by user id
	txs       map[string]domain.Transaction
	txOrder   []string
	requests  map[string]domain.PaymentRequest
	reqOrder  []string
	streaks   map[uuid.UUID]domain.BonusStreak
	grants    map[string]domain.BonusGrant
	users     map[uuid.UUID]domain.UserProfile
	outbox    []domain.OutboxRecord
	published map[int64]bool
	outboxSeq int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: &memState{
		wallets:   map[uuid.UUID]domain.Wallet{},
		txs:       map[string]domain.Transaction{},
		requests:  map[string]domain.PaymentRequest{},
		streaks:   map[uuid.UUID]domain.BonusStreak{},
		grants:    map[string]domain.BonusGrant{},
		users:     map[uuid.UUID]domain.UserProfile{},
		published: map[int64]bool{},
	}}
}

func (s *memState) clone() *memState {
	return &memState{
		wallets:   maps.Clone(s.wallets),
		txs:       maps.Clone(s.txs),
		txOrder:   slices.Clone(s.txOrder),
		requests:  maps.Clone(s.requests),
		reqOrder:  slices.Clone(s.reqOrder),
		streaks:   maps.Clone(s.streaks),
		grants:    maps.Clone(s.grants),
		users:     maps.Clone(s.users),
		outbox:    slices.Clone(s.outbox),
		published: maps.Clone(s.published),
		outboxSeq: s.outboxSeq,
	}
}

// InTx runs fn against a staged copy and commits it on success.
func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(ctx, memRepos(staged, nil)); err != nil {
		return err
	}
	m.state = staged
	return nil
}

// Repos returns repositories that lock per call and act on committed state.
func (m *MemoryStore) Repos() Repos {
	return memRepos(nil, m)
}

// Outbox exposes the outbox to the poller.
func (m *MemoryStore) Outbox() OutboxRepository {
	return m.Repos().Outbox
}

// PutUser seeds or replaces a user profile in the read-only directory.
func (m *MemoryStore) PutUser(p domain.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[p.ID] = p
}

func memRepos(staged *memState, store *MemoryStore) Repos {
	v := &memView{staged: staged, store: store}
	return Repos{
		Wallets:      memWallets{v},
		Transactions: memTransactions{v},
		Requests:     memRequests{v},
		Bonuses:      memBonuses{v},
		Users:        memUsers{v},
		Outbox:       memOutbox{v},
	}
}

// memView resolves the state a repository call acts on: the staged copy inside
// a unit of work, or the committed state under the store mutex.
type memView struct {
	staged *memState
	store  *MemoryStore
}

func (v *memView) open() (*memState, func()) {
	if v.staged != nil {
		return v.staged, func() {}
	}
	v.store.mu.Lock()
	return v.store.state, v.store.mu.Unlock
}

// --- wallets ---

type memWallets struct{ v *memView }

func (r memWallets) Get(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	s, done := r.v.open()
	defer done()
	for _, w := range s.wallets {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, nil
}

func (r memWallets) FindByUserID(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	s, done := r.v.open()
	defer done()
	w, ok := s.wallets[userID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (r memWallets) LockForUpdate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	return r.FindByUserID(ctx, userID)
}

func (r memWallets) Create(_ context.Context, w *domain.Wallet) error {
	s, done := r.v.open()
	defer done()
	if _, exists := s.wallets[w.UserID]; !exists {
		s.wallets[w.UserID] = *w
	}
	return nil
}

func (r memWallets) Save(_ context.Context, w *domain.Wallet) error {
	s, done := r.v.open()
	defer done()
	if _, ok := s.wallets[w.UserID]; !ok {
		return domain.ErrNotFound("wallet", w.ID.String())
	}
	s.wallets[w.UserID] = *w
	return nil
}

// --- transactions ---

type memTransactions struct{ v *memView }

func (r memTransactions) Append(_ context.Context, tx *domain.Transaction) error {
	s, done := r.v.open()
	defer done()
	if _, exists := s.txs[tx.ID]; exists {
		return domain.ErrConflict(fmt.Sprintf("transaction %s already exists", tx.ID))
	}
	cp := *tx
	cp.Metadata = domain.Metadata{}.Merge(tx.Metadata)
	s.txs[tx.ID] = cp
	s.txOrder = append(s.txOrder, tx.ID)
	return nil
}

func (r memTransactions) Find(ctx context.Context, filter domain.TransactionFilter) (*domain.Transaction, error) {
	filter.Limit = 1
	txs, err := r.List(ctx, filter)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	return &txs[0], nil
}

func (r memTransactions) List(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s, done := r.v.open()
	defer done()
	limit := limitOrDefault(filter.Limit)
	skip := filter.Offset
	var out []domain.Transaction
	for i := len(s.txOrder) - 1; i >= 0 && len(out) < limit; i-- {
		tx := s.txs[s.txOrder[i]]
		if !filter.Matches(&tx) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func (r memTransactions) Finalize(_ context.Context, id string, fin Finalization) (*domain.Transaction, error) {
	s, done := r.v.open()
	defer done()
	tx, ok := s.txs[id]
	if !ok {
		return nil, domain.ErrNotFound("transaction", id)
	}
	if tx.Status != domain.TxStatusPending {
		return nil, domain.ErrConflict(fmt.Sprintf("transaction %s is already %s", id, tx.Status))
	}
	tx.Status = fin.Status
	tx.BalanceBefore = fin.BalanceBefore
	tx.BalanceAfter = fin.BalanceAfter
	tx.Metadata = tx.Metadata.Merge(fin.Metadata)
	tx.UpdatedAt = time.Now()
	s.txs[id] = tx
	return &tx, nil
}

func (r memTransactions) Annotate(_ context.Context, id string, meta domain.Metadata) error {
	s, done := r.v.open()
	defer done()
	tx, ok := s.txs[id]
	if !ok {
		return domain.ErrNotFound("transaction", id)
	}
	tx.Metadata = tx.Metadata.Merge(meta)
	tx.UpdatedAt = time.Now()
	s.txs[id] = tx
	return nil
}

// --- payment requests ---

type memRequests struct{ v *memView }

func (r memRequests) Create(_ context.Context, req *domain.PaymentRequest) error {
	s, done := r.v.open()
	defer done()
	if req.Status == domain.RequestPending {
		for _, existing := range s.requests {
			if existing.Status == domain.RequestPending && existing.ExternalTxID == req.ExternalTxID && existing.Method == req.Method {
				return ErrPendingDuplicate
			}
		}
	}
	if _, exists := s.requests[req.ID]; exists {
		return domain.ErrConflict(fmt.Sprintf("payment request %s already exists", req.ID))
	}
	s.requests[req.ID] = *req
	s.reqOrder = append(s.reqOrder, req.ID)
	return nil
}

func (r memRequests) Get(_ context.Context, id string) (*domain.PaymentRequest, error) {
	s, done := r.v.open()
	defer done()
	req, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	return &req, nil
}

func (r memRequests) LockForUpdate(ctx context.Context, id string) (*domain.PaymentRequest, error) {
	return r.Get(ctx, id)
}

func (r memRequests) Update(_ context.Context, req *domain.PaymentRequest) error {
	s, done := r.v.open()
	defer done()
	existing, ok := s.requests[req.ID]
	if !ok {
		return domain.ErrNotFound("payment request", req.ID)
	}
	existing.Status = req.Status
	existing.AdminNotes = req.AdminNotes
	existing.ProviderRef = req.ProviderRef
	existing.ReceiverNumber = req.ReceiverNumber
	existing.DispatchedAt = req.DispatchedAt
	existing.UpdatedAt = req.UpdatedAt
	s.requests[req.ID] = existing
	return nil
}

func (r memRequests) FindPendingByExternalTxID(_ context.Context, externalTxID string, method domain.PaymentMethod) (*domain.PaymentRequest, error) {
	s, done := r.v.open()
	defer done()
	for _, id := range s.reqOrder {
		req := s.requests[id]
		if req.Status == domain.RequestPending && req.ExternalTxID == externalTxID && req.Method == method {
			return &req, nil
		}
	}
	return nil, nil
}

func (r memRequests) ListByStatus(_ context.Context, status domain.RequestStatus, limit int) ([]domain.PaymentRequest, error) {
	s, done := r.v.open()
	defer done()
	limit = limitOrDefault(limit)
	var out []domain.PaymentRequest
	for _, id := range s.reqOrder {
		if len(out) == limit {
			break
		}
		if req := s.requests[id]; req.Status == status {
			out = append(out, req)
		}
	}
	return out, nil
}

func (r memRequests) ListByStatusAfter(_ context.Context, status domain.RequestStatus, afterID string, limit int) ([]domain.PaymentRequest, error) {
	s, done := r.v.open()
	defer done()
	var out []domain.PaymentRequest
	for _, req := range s.requests {
		if req.Status == status && req.ID > afterID {
			out = append(out, req)
		}
	}
	slices.SortFunc(out, func(a, b domain.PaymentRequest) int { return strings.Compare(a.ID, b.ID) })
	if limit = limitOrDefault(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memRequests) CountByUser(_ context.Context, userID uuid.UUID, status domain.RequestStatus) (int, error) {
	s, done := r.v.open()
	defer done()
	n := 0
	for _, req := range s.requests {
		if req.UserID == userID && req.Status == status {
			n++
		}
	}
	return n, nil
}

func (r memRequests) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.PaymentRequest, error) {
	s, done := r.v.open()
	defer done()
	limit = limitOrDefault(limit)
	var out []domain.PaymentRequest
	for i := len(s.reqOrder) - 1; i >= 0 && len(out) < limit; i-- {
		if req := s.requests[s.reqOrder[i]]; req.UserID == userID {
			out = append(out, req)
		}
	}
	return out, nil
}

// --- bonuses ---

type memBonuses struct{ v *memView }

func (r memBonuses) GetStreak(_ context.Context, userID uuid.UUID) (*domain.BonusStreak, error) {
	s, done := r.v.open()
	defer done()
	st, ok := s.streaks[userID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (r memBonuses) SaveStreak(_ context.Context, st *domain.BonusStreak) error {
	s, done := r.v.open()
	defer done()
	s.streaks[st.UserID] = *st
	return nil
}

func (r memBonuses) ResetStaleStreaks(_ context.Context, cutoff time.Time) (int, error) {
	s, done := r.v.open()
	defer done()
	n := 0
	for id, st := range s.streaks {
		if st.CurrentStreak > 0 && st.LastClaimDate != nil && st.LastClaimDate.Before(cutoff) {
			st.CurrentStreak = 0
			st.UpdatedAt = time.Now()
			s.streaks[id] = st
			n++
		}
	}
	return n, nil
}

func (r memBonuses) RecordGrant(_ context.Context, g *domain.BonusGrant) (bool, error) {
	s, done := r.v.open()
	defer done()
	key := g.UserID.String() + "|" + string(g.Kind) + "|" + g.GrantKey
	if _, taken := s.grants[key]; taken {
		return false, nil
	}
	s.grants[key] = *g
	return true, nil
}

// --- users ---

type memUsers struct{ v *memView }

func (r memUsers) GetProfile(_ context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	s, done := r.v.open()
	defer done()
	p, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// --- outbox ---

type memOutbox struct{ v *memView }

func (r memOutbox) Insert(_ context.Context, draft domain.OutboxDraft) error {
	s, done := r.v.open()
	defer done()
	s.outboxSeq++
	s.outbox = append(s.outbox, domain.OutboxRecord{SeqID: s.outboxSeq, OutboxDraft: draft})
	return nil
}

func (r memOutbox) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRecord, error) {
	s, done := r.v.open()
	defer done()
	limit = limitOrDefault(limit)
	var out []domain.OutboxRecord
	for _, rec := range s.outbox {
		if len(out) == limit {
			break
		}
		if !s.published[rec.SeqID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r memOutbox) MarkPublished(_ context.Context, seqIDs []int64) error {
	s, done := r.v.open()
	defer done()
	for _, id := range seqIDs {
		s.published[id] = true
	}
	return nil
}
