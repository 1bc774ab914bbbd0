package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	bkashSandboxURL    = "https://checkout.sandbox.bka.sh/v1.2.0-beta"
	bkashProductionURL = "https://checkout.pay.bka.sh/v1.2.0-beta"
)

// BkashConfig holds checkout credentials. BaseURL overrides the sandbox or
// production host.
type BkashConfig struct {
	AppKey    string
	AppSecret string
	Username  string
	Password  string
	Sandbox   bool
	BaseURL   string
}

// BkashChannel drives the bKash checkout API: token grant, payment create,
// payment query and B2C payouts.
type BkashChannel struct {
	cfg     BkashConfig
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewBkashChannel creates a bKash channel.
func NewBkashChannel(cfg BkashConfig, logger *slog.Logger) *BkashChannel {
	base := cfg.BaseURL
	if base == "" {
		base = bkashProductionURL
		if cfg.Sandbox {
			base = bkashSandboxURL
		}
	}
	return &BkashChannel{
		cfg:     cfg,
		baseURL: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type bkashStatus struct {
	StatusCode    string `json:"statusCode"`
	StatusMessage string `json:"statusMessage"`
	ErrorCode     string `json:"errorCode"`
	ErrorMessage  string `json:"errorMessage"`
}

func (s bkashStatus) err() error {
	if s.ErrorCode != "" {
		return fmt.Errorf("bkash error %s: %s", s.ErrorCode, s.ErrorMessage)
	}
	if s.StatusCode != "" && s.StatusCode != "0000" {
		return fmt.Errorf("bkash status %s: %s", s.StatusCode, s.StatusMessage)
	}
	return nil
}

func (c *BkashChannel) grantToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.cfg.AppKey == "" {
		return "", fmt.Errorf("bkash app key not configured")
	}

	var resp struct {
		bkashStatus
		IDToken   string `json:"id_token"`
		ExpiresIn int    `json:"expires_in"`
	}
	headers := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
	body := map[string]string{"app_key": c.cfg.AppKey, "app_secret": c.cfg.AppSecret}
	if err := c.do(ctx, http.MethodPost, "/checkout/token/grant", headers, body, &resp); err != nil {
		return "", fmt.Errorf("token grant: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("token grant: %w", err)
	}
	if resp.IDToken == "" {
		return "", fmt.Errorf("token grant: empty id_token")
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 2 * time.Minute
	}
	c.token = resp.IDToken
	c.tokenExpiry = time.Now().Add(ttl - time.Minute)
	return c.token, nil
}

func (c *BkashChannel) authed(ctx context.Context, method, path string, body, out any) error {
	token, err := c.grantToken(ctx)
	if err != nil {
		return err
	}
	headers := map[string]string{"Authorization": token, "X-APP-Key": c.cfg.AppKey}
	return c.do(ctx, method, path, headers, body, out)
}

// InitiateDeposit creates a checkout payment. The provider ref is bKash's paymentID.
func (c *BkashChannel) InitiateDeposit(ctx context.Context, amount decimal.Decimal, reference string) (*Checkout, error) {
	var resp struct {
		bkashStatus
		PaymentID string `json:"paymentID"`
		BkashURL  string `json:"bkashURL"`
	}
	body := map[string]string{
		"amount":                amount.StringFixed(2),
		"currency":              "BDT",
		"intent":                "sale",
		"merchantInvoiceNumber": reference,
	}
	if err := c.authed(ctx, http.MethodPost, "/checkout/payment/create", body, &resp); err != nil {
		return nil, fmt.Errorf("payment create: %w", err)
	}
	if err := resp.err(); err != nil {
		return nil, fmt.Errorf("payment create: %w", err)
	}
	if resp.PaymentID == "" {
		return nil, fmt.Errorf("payment create: empty paymentID")
	}
	return &Checkout{ProviderRef: resp.PaymentID, PayURL: resp.BkashURL}, nil
}

// VerifyDeposit reports whether the payment reached Completed.
func (c *BkashChannel) VerifyDeposit(ctx context.Context, ref string) (bool, error) {
	var resp struct {
		bkashStatus
		TransactionStatus string `json:"transactionStatus"`
	}
	if err := c.authed(ctx, http.MethodGet, "/checkout/payment/query/"+ref, nil, &resp); err != nil {
		return false, fmt.Errorf("payment query: %w", err)
	}
	if err := resp.err(); err != nil {
		return false, fmt.Errorf("payment query: %w", err)
	}
	return resp.TransactionStatus == "Completed", nil
}

// InitiateWithdrawal sends a B2C payout to account. The provider ref is bKash's trxID.
// reference travels as merchantInvoiceNumber, which bKash rejects when reused.
func (c *BkashChannel) InitiateWithdrawal(ctx context.Context, amount decimal.Decimal, account, reference string) (string, error) {
	var resp struct {
		bkashStatus
		TrxID string `json:"trxID"`
	}
	body := map[string]string{
		"amount":                amount.StringFixed(2),
		"currency":              "BDT",
		"merchantInvoiceNumber": reference,
		"receiverMSISDN":        account,
	}
	if err := c.authed(ctx, http.MethodPost, "/checkout/payment/b2cPayment", body, &resp); err != nil {
		return "", fmt.Errorf("b2c payment: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("b2c payment: %w", err)
	}
	if resp.TrxID == "" {
		return "", fmt.Errorf("b2c payment: empty trxID")
	}
	return resp.TrxID, nil
}

// WithdrawalStatus searches a payout by trxID.
func (c *BkashChannel) WithdrawalStatus(ctx context.Context, ref string) (PayoutStatus, error) {
	var resp struct {
		bkashStatus
		TransactionStatus string `json:"transactionStatus"`
	}
	if err := c.authed(ctx, http.MethodGet, "/checkout/payment/search/"+ref, nil, &resp); err != nil {
		return "", fmt.Errorf("payment search: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("payment search: %w", err)
	}
	return bkashPayoutStatus(resp.TransactionStatus), nil
}

func bkashPayoutStatus(s string) PayoutStatus {
	switch s {
	case "Completed":
		return PayoutCompleted
	case "Failed", "Cancelled", "Expired", "Declined":
		return PayoutFailed
	default:
		return PayoutPending
	}
}

func (c *BkashChannel) do(ctx context.Context, method, path string, headers map[string]string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("bkash api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bkash error (status %d): %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode bkash response: %w", err)
	}
	return nil
}
