package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/projection"
)

const (
	rateCacheTTL   = time.Minute
	rateBreakerKey = "coingecko"
)

// coinGeckoIDs maps supported assets to CoinGecko coin ids.
var coinGeckoIDs = map[string]string{
	"usdt": "tether",
	"btc":  "bitcoin",
	"eth":  "ethereum",
}

// FallbackRates are used when the price source is unreachable.
var FallbackRates = map[string]decimal.Decimal{
	"usdt": decimal.NewFromInt(110),
	"btc":  decimal.NewFromInt(4000000),
	"eth":  decimal.NewFromInt(300000),
}

// RateSource quotes crypto prices in BDT from CoinGecko with a short cache and
// fixed fallback rates.
type RateSource struct {
	baseURL string
	client  *http.Client
	cache   projection.Store
	breaker *guard.CircuitBreaker
	logger  *slog.Logger
}

// NewRateSource creates a CoinGecko-backed rate source.
func NewRateSource(baseURL string, cache projection.Store, breaker *guard.CircuitBreaker, logger *slog.Logger) *RateSource {
	return &RateSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
		cache:   cache,
		breaker: breaker,
		logger:  logger,
	}
}

// Supported reports whether asset has a quote.
func Supported(asset string) bool {
	_, ok := coinGeckoIDs[strings.ToLower(asset)]
	return ok
}

// Rate returns the BDT price of one unit of asset. Unknown assets and
// upstream failures return the fallback rate (zero for unknown assets).
func (s *RateSource) Rate(ctx context.Context, asset string) decimal.Decimal {
	asset = strings.ToLower(asset)
	if !Supported(asset) {
		return decimal.Zero
	}

	key := "rates:bdt:" + asset
	var cached decimal.Decimal
	if err := projection.GetJSON(ctx, s.cache, key, &cached); err == nil {
		return cached
	}

	var rates map[string]decimal.Decimal
	err := s.breaker.Do(ctx, rateBreakerKey, func(ctx context.Context) error {
		var err error
		rates, err = s.fetch(ctx)
		return err
	})
	if err != nil {
		s.logger.Warn("exchange rate source unavailable, using fallback", "asset", asset, "error", err)
		return FallbackRates[asset]
	}

	for a, r := range rates {
		if err := projection.SetJSON(ctx, s.cache, "rates:bdt:"+a, r, rateCacheTTL); err != nil {
			s.logger.Debug("rate cache write failed", "asset", a, "error", err)
		}
	}
	if r, ok := rates[asset]; ok {
		return r
	}
	return FallbackRates[asset]
}

func (s *RateSource) fetch(ctx context.Context) (map[string]decimal.Decimal, error) {
	ids := make([]string, 0, len(coinGeckoIDs))
	for _, id := range coinGeckoIDs {
		ids = append(ids, id)
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=bdt", s.baseURL, strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned %d", resp.StatusCode)
	}

	var body map[string]struct {
		BDT decimal.Decimal `json:"bdt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(coinGeckoIDs))
	for asset, id := range coinGeckoIDs {
		if q, ok := body[id]; ok && q.BDT.IsPositive() {
			out[asset] = q.BDT
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no bdt quotes in response")
	}
	return out, nil
}
