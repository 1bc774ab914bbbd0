package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/attaboy/walletcore/internal/auth"
	"github.com/attaboy/walletcore/internal/domain"
	"github.com/attaboy/walletcore/internal/guard"
	"github.com/attaboy/walletcore/internal/handler"
	adminhandler "github.com/attaboy/walletcore/internal/handler/admin"
	"github.com/attaboy/walletcore/internal/infra"
	"github.com/attaboy/walletcore/internal/ledger"
	"github.com/attaboy/walletcore/internal/policy"
	"github.com/attaboy/walletcore/internal/projection"
	"github.com/attaboy/walletcore/internal/provider"
	"github.com/attaboy/walletcore/internal/repository"
	"github.com/attaboy/walletcore/internal/service"
	"github.com/attaboy/walletcore/internal/walletserver"
)

// ServiceDeps holds what NewServices needs. Cache and Hub may be nil.
type ServiceDeps struct {
	Store    repository.Store
	Cache    projection.Store
	Hub      *infra.WSHub
	Gateway  *provider.Gateway
	Logger   *slog.Logger
	Currency string
	Location *time.Location
	Requests service.PaymentRequestConfig
}

// Services is the wired service layer shared by the API and the worker.
type Services struct {
	Recorder *ledger.Recorder
	Requests *service.PaymentRequestService
	Bonuses  *service.BonusService
	Games    *service.GamePlayService
	Wallets  *service.WalletService
	Live     *projection.LiveStats
	Gateway  *provider.Gateway
}

// NewServices builds every service over one store and registers the
// post-commit observers that keep the balance and live-stats projections
// current.
func NewServices(d ServiceDeps) (*Services, error) {
	cache := d.Cache
	if cache == nil {
		cache = projection.NewInMemoryStore()
	}
	var publisher projection.Publisher
	if d.Hub != nil {
		publisher = d.Hub
	}

	live := projection.NewLiveStats(cache, publisher, d.Logger)
	observers := []ledger.Observer{
		projection.NewBalanceObserver(cache, d.Logger),
		live,
	}

	rec := ledger.NewRecorder(d.Currency)
	bonuses := service.NewBonusService(d.Store, rec, d.Requests.Limits, d.Location, d.Logger).
		WithObservers(observers...)
	requests, err := service.NewPaymentRequestService(d.Store, rec, d.Gateway, bonuses, d.Requests, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("payment request service: %w", err)
	}

	return &Services{
		Recorder: rec,
		Requests: requests.WithObservers(observers...),
		Bonuses:  bonuses,
		Games:    service.NewGamePlayService(d.Store, rec, d.Logger).WithObservers(observers...),
		Wallets:  service.NewWalletService(d.Store, cache, d.Requests.Limits, d.Currency, d.Logger),
		Live:     live,
		Gateway:  d.Gateway,
	}, nil
}

// NewGateway registers a channel for every payment method: the bKash API
// when credentials are configured, Nagad checkout, crypto checkout, and the
// manual agent desk for the rest.
func NewGateway(cfg *infra.Config, cache projection.Store, logger *slog.Logger) *provider.Gateway {
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	rates := provider.NewRateSource(cfg.CoinGeckoURL, cache, breaker, logger)
	agents := cfg.AgentNumbers()

	gw := provider.NewGateway(rates, breaker, logger)
	if cfg.BkashAppKey != "" {
		gw.Register(domain.MethodBkash, provider.NewBkashChannel(provider.BkashConfig{
			AppKey:    cfg.BkashAppKey,
			AppSecret: cfg.BkashAppSecret,
			Username:  cfg.BkashUsername,
			Password:  cfg.BkashPassword,
			Sandbox:   cfg.BkashSandbox,
		}, logger))
	} else {
		gw.Register(domain.MethodBkash, provider.NewAgentDesk(agents[domain.MethodBkash]))
	}
	gw.Register(domain.MethodNagad, provider.NewNagadChannel(cfg.NagadMerchantID, cfg.NagadSandbox))
	gw.Register(domain.MethodRocket, provider.NewAgentDesk(agents[domain.MethodRocket]))
	gw.Register(domain.MethodBank, provider.NewAgentDesk(""))
	gw.Register(domain.MethodUSDT, provider.NewCryptoChannel("usdt", rates))
	return gw
}

// PaymentRequestConfig maps environment settings onto the request rules.
func PaymentRequestConfig(cfg *infra.Config) service.PaymentRequestConfig {
	limits := policy.DefaultLimits()
	limits.DepositMin = cfg.Decimal(cfg.DepositMin)
	limits.DepositMax = cfg.Decimal(cfg.DepositMax)
	limits.WageringRequirement = cfg.Decimal(cfg.WageringRequirement)
	return service.PaymentRequestConfig{
		Limits:              limits,
		Routing:             policy.DefaultMethodRoutingPolicy(),
		MobileNumberPattern: cfg.MobileNumberPattern,
		AgentNumbers:        cfg.AgentNumbers(),
		DepositBonusEnabled: cfg.DepositBonusEnabled,
		RequestRateLimit:    cfg.RequestRateLimit,
		SettlementSecret:    cfg.SettlementSecret,

		DispatchClaimTimeout: cfg.PayoutClaimTimeout,
	}
}

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Services    *Services
	JWTMgr      *auth.JWTManager
	Hub         *infra.WSHub
	Logger      *slog.Logger
	CORSOrigins string
	Health      []handler.HealthCheck
	GameSecret  string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	svcs := deps.Services
	jwtMgr := deps.JWTMgr
	logger := deps.Logger

	// Handlers
	requestHandler := handler.NewPaymentRequestHandler(svcs.Requests)
	bonusHandler := handler.NewBonusHandler(svcs.Bonuses)
	walletHandler := handler.NewWalletHandler(svcs.Wallets)
	checkoutHandler := handler.NewCheckoutHandler(svcs.Requests, svcs.Gateway)
	webhookHandler := handler.NewWebhookHandler(svcs.Requests, logger)

	// Admin handlers
	requestAdmin := adminhandler.NewPaymentRequestAdminHandler(svcs.Requests)
	bonusAdmin := adminhandler.NewBonusAdminHandler(svcs.Bonuses)
	userAdmin := adminhandler.NewUserAdminHandler(svcs.Wallets)

	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Public
	r.Get("/health", handler.HealthHandler(deps.Health...))
	r.Post("/webhooks/settlement", webhookHandler.HandleSettlement)
	if deps.Hub != nil {
		r.Get("/live", handler.NewLiveHandler(deps.Hub, svcs.Live, logger).Serve)
	}

	// Game engine wallet callbacks (HMAC)
	if deps.GameSecret != "" {
		r.Mount("/games", walletserver.NewServer(svcs.Games, svcs.Wallets, deps.GameSecret, logger).Routes())
	}

	// Player-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(jwtMgr))

		r.Route("/payment-requests", func(r chi.Router) {
			r.Post("/", requestHandler.Create)
			r.Get("/", requestHandler.List)
			r.Get("/{id}", requestHandler.Get)
			r.Post("/{id}/cancel", requestHandler.Cancel)
		})

		r.Post("/bonus/daily", bonusHandler.ClaimDaily)
		r.Get("/bonus/streak", bonusHandler.GetStreak)
		r.Get("/withdrawals/eligibility", bonusHandler.Eligibility)

		r.Get("/stats/me", walletHandler.GetStats)
		r.Get("/wallet", walletHandler.GetBalance)
		r.Get("/wallet/transactions", walletHandler.GetTransactions)

		r.Post("/deposits/checkout", checkoutHandler.Checkout)
		r.Get("/rates/{asset}", checkoutHandler.GetRate)
	})

	// Admin routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(jwtMgr))

		// Read-only (any admin role)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.StaffRoles()...))
			r.Get("/payment-requests/pending", requestAdmin.ListPending)
			r.Get("/payment-requests/{id}", requestAdmin.Get)
			r.Get("/users/{id}/stats", userAdmin.Stats)
			r.Get("/wallets/{userID}/audit", userAdmin.Audit)
		})

		// Review queue mutations
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.ReviewRoles()...))
			r.Post("/payment-requests/{id}/approve", requestAdmin.Approve)
			r.Post("/payment-requests/{id}/reject", requestAdmin.Reject)
			r.Post("/payment-requests/{id}/cancel", requestAdmin.Cancel)
			r.Post("/payment-requests/{id}/settle", requestAdmin.Settle)
			r.Post("/payment-requests/{id}/fail", requestAdmin.Fail)
		})

		// Manual credits
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.GrantRoles()...))
			r.Post("/bonuses/welcome", bonusAdmin.GrantWelcome)
			r.Post("/bonuses/referral", bonusAdmin.GrantReferral)
			r.Post("/bonuses/deposit", bonusAdmin.GrantDeposit)
		})
	})

	return r
}
