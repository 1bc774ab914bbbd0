package provider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	nagadSandboxURL    = "https://sandbox.mynagad.com"
	nagadProductionURL = "https://checkout.mynagad.com"
)

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// NagadChannel issues hosted checkout links. Deposits and payouts are
// confirmed by an operator or the settlement webhook, never by polling.
type NagadChannel struct {
	merchantID string
	baseURL    string
	now        func() time.Time
}

// NewNagadChannel creates a Nagad channel on the sandbox or production host.
func NewNagadChannel(merchantID string, sandbox bool) *NagadChannel {
	base := nagadProductionURL
	if sandbox {
		base = nagadSandboxURL
	}
	return &NagadChannel{merchantID: merchantID, baseURL: base, now: time.Now}
}

func (c *NagadChannel) InitiateDeposit(_ context.Context, _ decimal.Decimal, _ string) (*Checkout, error) {
	orderID := fmt.Sprintf("NAGAD_%d_%s", c.now().UnixMilli(), randomHex(4))
	return &Checkout{
		ProviderRef: orderID,
		PayURL:      c.baseURL + "/checkout?orderId=" + orderID,
	}, nil
}

func (c *NagadChannel) VerifyDeposit(context.Context, string) (bool, error) {
	return false, nil
}

func (c *NagadChannel) InitiateWithdrawal(_ context.Context, _ decimal.Decimal, _, reference string) (string, error) {
	return "NGDPAY_" + reference, nil
}

func (c *NagadChannel) WithdrawalStatus(context.Context, string) (PayoutStatus, error) {
	return PayoutPending, nil
}

// AgentDesk is the manual rail: users send money to a published agent number
// and staff pay withdrawals by hand. Confirmation arrives through admin review
// or the settlement webhook.
type AgentDesk struct {
	agentNumber string
}

// NewAgentDesk creates a manual channel that publishes agentNumber.
func NewAgentDesk(agentNumber string) *AgentDesk {
	return &AgentDesk{agentNumber: agentNumber}
}

func (d *AgentDesk) InitiateDeposit(_ context.Context, _ decimal.Decimal, reference string) (*Checkout, error) {
	if d.agentNumber == "" {
		return nil, fmt.Errorf("no agent number configured")
	}
	return &Checkout{ProviderRef: "desk_" + reference, Address: d.agentNumber}, nil
}

func (d *AgentDesk) VerifyDeposit(context.Context, string) (bool, error) {
	return false, nil
}

func (d *AgentDesk) InitiateWithdrawal(_ context.Context, _ decimal.Decimal, _, reference string) (string, error) {
	return "desk_payout_" + reference, nil
}

func (d *AgentDesk) WithdrawalStatus(context.Context, string) (PayoutStatus, error) {
	return PayoutPending, nil
}

// CryptoChannel quotes deposits in asset units and hands out a one-time
// address. On-chain confirmation is delivered by the settlement webhook.
type CryptoChannel struct {
	asset string
	rates *RateSource
}

// NewCryptoChannel creates a channel for asset ("usdt", "btc", "eth").
func NewCryptoChannel(asset string, rates *RateSource) *CryptoChannel {
	return &CryptoChannel{asset: asset, rates: rates}
}

// NewDepositAddress returns "0x" followed by 32 hex characters.
func NewDepositAddress() string {
	return "0x" + randomHex(16)
}

func (c *CryptoChannel) InitiateDeposit(ctx context.Context, amount decimal.Decimal, _ string) (*Checkout, error) {
	rate := c.rates.Rate(ctx, c.asset)
	if !rate.IsPositive() {
		return nil, fmt.Errorf("no exchange rate for %s", c.asset)
	}
	units := amount.DivRound(rate, 8)
	address := NewDepositAddress()
	return &Checkout{
		ProviderRef:  address,
		Address:      address,
		Asset:        c.asset,
		AssetAmount:  &units,
		ExchangeRate: &rate,
	}, nil
}

func (c *CryptoChannel) VerifyDeposit(context.Context, string) (bool, error) {
	return false, nil
}

func (c *CryptoChannel) InitiateWithdrawal(_ context.Context, _ decimal.Decimal, account, reference string) (string, error) {
	if account == "" {
		return "", fmt.Errorf("destination address is required")
	}
	return "tx_" + reference, nil
}

func (c *CryptoChannel) WithdrawalStatus(context.Context, string) (PayoutStatus, error) {
	return PayoutPending, nil
}
