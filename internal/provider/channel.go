package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
)

// Checkout is what a user needs to complete a deposit off-platform.
// Exactly one of PayURL and Address is set.
type Checkout struct {
	ProviderRef  string           `json:"provider_ref"`
	PayURL       string           `json:"pay_url,omitempty"`
	Address      string           `json:"address,omitempty"`
	Asset        string           `json:"asset,omitempty"`
	AssetAmount  *decimal.Decimal `json:"asset_amount,omitempty"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
}

// PayoutStatus is the provider's view of a withdrawal.
type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutCompleted PayoutStatus = "completed"
	PayoutFailed    PayoutStatus = "failed"
)

// Channel is one external payment rail. Implementations may be slow or
// unreliable; callers never hold a wallet lock while calling them.
//
// The reference passed to InitiateWithdrawal is the payout's idempotency key.
// Calling it again with the same reference must not start a second payout and
// should return the same ref.
type Channel interface {
	InitiateDeposit(ctx context.Context, amount decimal.Decimal, reference string) (*Checkout, error)
	VerifyDeposit(ctx context.Context, ref string) (bool, error)
	InitiateWithdrawal(ctx context.Context, amount decimal.Decimal, account, reference string) (string, error)
	WithdrawalStatus(ctx context.Context, ref string) (PayoutStatus, error)
}

// Gateway routes adapter calls to the channel registered for each payment
// method, behind a per-method circuit breaker. Provider refs it returns are
// "<method>:<channel ref>".
type Gateway struct {
	channels map[domain.PaymentMethod]Channel
	rates    *RateSource
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger
}

// NewGateway creates a gateway with no channels registered.
func NewGateway(rates *RateSource, breaker *guard.CircuitBreaker, logger *slog.Logger) *Gateway {
	return &Gateway{
		channels: make(map[domain.PaymentMethod]Channel),
		rates:    rates,
		breaker:  breaker,
		logger:   logger,
	}
}

// Register binds a channel to a method.
func (g *Gateway) Register(method domain.PaymentMethod, ch Channel) *Gateway {
	g.channels[method] = ch
	return g
}

func (g *Gateway) channel(method domain.PaymentMethod) (Channel, error) {
	ch, ok := g.channels[method]
	if !ok {
		return nil, domain.ErrValidation(fmt.Sprintf("payment method %s is not supported", method))
	}
	return ch, nil
}

// ProviderRef joins a method and a channel reference.
func ProviderRef(method domain.PaymentMethod, ref string) string {
	return string(method) + ":" + ref
}

// ParseProviderRef splits a gateway provider ref.
func ParseProviderRef(providerRef string) (domain.PaymentMethod, string, error) {
	method, ref, ok := strings.Cut(providerRef, ":")
	if !ok || ref == "" || !domain.PaymentMethod(method).Valid() {
		return "", "", domain.ErrValidation(fmt.Sprintf("malformed provider ref %q", providerRef))
	}
	return domain.PaymentMethod(method), ref, nil
}

func (g *Gateway) call(ctx context.Context, method domain.PaymentMethod, fn func(ctx context.Context) error) error {
	err := g.breaker.Do(ctx, string(method), fn)
	if err == nil || domain.AsAppError(err) != nil {
		return err
	}
	return domain.ErrExternalProvider(string(method), err)
}

// InitiateDeposit starts a deposit on the method's channel.
func (g *Gateway) InitiateDeposit(ctx context.Context, method domain.PaymentMethod, amount decimal.Decimal, reference string) (*Checkout, error) {
	ch, err := g.channel(method)
	if err != nil {
		return nil, err
	}
	var out *Checkout
	err = g.call(ctx, method, func(ctx context.Context) error {
		var err error
		out, err = ch.InitiateDeposit(ctx, amount, reference)
		return err
	})
	if err != nil {
		g.logger.Warn("deposit initiation failed", "method", method, "reference", reference, "error", err)
		return nil, err
	}
	out.ProviderRef = ProviderRef(method, out.ProviderRef)
	return out, nil
}

// VerifyDeposit asks the channel whether a deposit has been paid.
func (g *Gateway) VerifyDeposit(ctx context.Context, providerRef string) (bool, error) {
	method, ref, err := ParseProviderRef(providerRef)
	if err != nil {
		return false, err
	}
	ch, err := g.channel(method)
	if err != nil {
		return false, err
	}
	var paid bool
	err = g.call(ctx, method, func(ctx context.Context) error {
		var err error
		paid, err = ch.VerifyDeposit(ctx, ref)
		return err
	})
	return paid, err
}

// InitiateWithdrawal starts a payout and returns its provider ref.
func (g *Gateway) InitiateWithdrawal(ctx context.Context, method domain.PaymentMethod, amount decimal.Decimal, account, reference string) (string, error) {
	ch, err := g.channel(method)
	if err != nil {
		return "", err
	}
	var ref string
	err = g.call(ctx, method, func(ctx context.Context) error {
		var err error
		ref, err = ch.InitiateWithdrawal(ctx, amount, account, reference)
		return err
	})
	if err != nil {
		g.logger.Warn("payout initiation failed", "method", method, "reference", reference, "error", err)
		return "", err
	}
	return ProviderRef(method, ref), nil
}

// WithdrawalStatus polls the channel for a payout's outcome.
func (g *Gateway) WithdrawalStatus(ctx context.Context, providerRef string) (PayoutStatus, error) {
	method, ref, err := ParseProviderRef(providerRef)
	if err != nil {
		return "", err
	}
	ch, err := g.channel(method)
	if err != nil {
		return "", err
	}
	var status PayoutStatus
	err = g.call(ctx, method, func(ctx context.Context) error {
		var err error
		status, err = ch.WithdrawalStatus(ctx, ref)
		return err
	})
	return status, err
}

// GetExchangeRate returns the BDT price of asset. It never fails.
func (g *Gateway) GetExchangeRate(ctx context.Context, asset string) decimal.Decimal {
	return g.rates.Rate(ctx, asset)
}
