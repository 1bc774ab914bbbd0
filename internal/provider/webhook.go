package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SettlementHeader carries the webhook signature: "t=<unix>,v1=<hex hmac>".
const SettlementHeader = "X-Settlement-Signature"

const settlementTolerance = 5 * time.Minute

// SettlementEvent is a provider's report on a deposit or payout.
type SettlementEvent struct {
	ID          string `json:"id"`
	RequestID   string `json:"request_id"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

// Settlement event statuses.
const (
	SettlementCompleted = "completed"
	SettlementFailed    = "failed"
)

// SettlementVerifier checks HMAC-SHA256 signatures on settlement webhooks.
type SettlementVerifier struct {
	secret string
	now    func() time.Time
}

// NewSettlementVerifier creates a verifier for secret.
func NewSettlementVerifier(secret string) *SettlementVerifier {
	return &SettlementVerifier{secret: secret, now: time.Now}
}

// WithClock replaces the time source.
func (v *SettlementVerifier) WithClock(now func() time.Time) *SettlementVerifier {
	v.now = now
	return v
}

// Sign returns the header value for payload signed at ts.
func (v *SettlementVerifier) Sign(payload []byte, ts time.Time) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + timestamp + ",v1=" + v.mac(timestamp, payload)
}

func (v *SettlementVerifier) mac(timestamp string, payload []byte) string {
	m := hmac.New(sha256.New, []byte(v.secret))
	m.Write([]byte(timestamp + "." + string(payload)))
	return hex.EncodeToString(m.Sum(nil))
}

// Verify checks sigHeader against payload and returns the parsed event.
func (v *SettlementVerifier) Verify(payload []byte, sigHeader string) (*SettlementEvent, error) {
	if err := v.Authenticate(payload, sigHeader); err != nil {
		return nil, err
	}

	var event SettlementEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode settlement event: %w", err)
	}
	if event.ID == "" || event.RequestID == "" {
		return nil, fmt.Errorf("settlement event missing id or request_id")
	}
	if event.Status != SettlementCompleted && event.Status != SettlementFailed {
		return nil, fmt.Errorf("unknown settlement status %q", event.Status)
	}
	return &event, nil
}

// Authenticate checks only the signature and its timestamp. Game engine
// callbacks are signed the same way as settlement webhooks.
func (v *SettlementVerifier) Authenticate(payload []byte, sigHeader string) error {
	if v.secret == "" {
		return fmt.Errorf("webhook secret not configured")
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(sigHeader, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return fmt.Errorf("invalid signature header format")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > settlementTolerance || age < -settlementTolerance {
		return fmt.Errorf("webhook timestamp outside tolerance")
	}

	expected := v.mac(timestamp, payload)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid webhook signature")
	}

	return nil
}
