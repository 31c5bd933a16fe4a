package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-cart/internal/app"
	"github.com/noah-isme/toko-cart/internal/auth"
	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/common"
	"github.com/noah-isme/toko-cart/internal/config"
	"github.com/noah-isme/toko-cart/internal/coupon"
	"github.com/noah-isme/toko-cart/internal/health"
	"github.com/noah-isme/toko-cart/internal/lock"
	"github.com/noah-isme/toko-cart/internal/obs"
	"github.com/noah-isme/toko-cart/internal/pricing"
	"github.com/noah-isme/toko-cart/internal/queue"
	"github.com/noah-isme/toko-cart/internal/ratelimit"
	"github.com/noah-isme/toko-cart/internal/resilience"
	"github.com/noah-isme/toko-cart/internal/repo"
	"github.com/noah-isme/toko-cart/internal/security"
	"github.com/noah-isme/toko-cart/internal/stock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.ObsLogFormat, cfg.ObsLogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.ObsMetricsNamespace, nil)
	resilience.MustRegisterMetrics(cfg.ObsMetricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(cfg.ObsMetricsNamespace, obs.ParseBucketsCSV(os.Getenv("OBS_METRICS_BUCKETS_MS")), nil)

	if cfg.ObsEnableTracing {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "toko-cart-api",
			Endpoint:      cfg.ObsOTLPEndpoint,
			SamplingRatio: cfg.ObsTracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.Redis(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if err := repo.Migrate(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		pool, err = app.Connect(ctx, cfg, "toko-cart-api")
		if err != nil {
			logger.Fatal().Err(err).Msg("database")
		}
		defer pool.Close()
	} else {
		logger.Warn().Msg("DATABASE_URL not set, serving catalog and coupons from memory")
	}
	backends := app.NewBackends(cfg, pool, redisClient, logger)

	options, err := app.LoadCheckoutOptions(cfg.CheckoutOptionsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("checkout options")
	}

	usage, err := usageRecorder(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("task queue")
	}
	defer func() { _ = usage.Close() }()

	svc := &cart.Service{
		Catalog:  backends.Catalog,
		Stock:    &stock.Engine{Catalog: backends.Catalog, Stock: backends.Stock, Logger: logger},
		Pricing:  &pricing.Engine{Catalog: backends.Catalog, Tax: backends.Tax, Currencies: backends.Currencies, Logger: logger},
		Coupons:  &coupon.Engine{Repo: backends.Coupons, Logger: logger},
		Store:    cart.NewRedisStore(redisClient, cfg.CartTTL),
		Usage:    usage,
		Settings: app.CartSettings(cfg, options),
		Logger:   logger.With().Str("component", "cart").Logger(),
	}

	couponLimiter, err := app.NewCouponLimiter(redisClient, cfg.CouponAttemptsPerMin)
	if err != nil {
		logger.Fatal().Err(err).Msg("coupon limiter")
	}

	cartHandler := &cart.Handler{
		Svc:           svc,
		Locker:        lock.Locker{R: redisClient, Logger: logger},
		LockTTL:       cfg.CartLockTTL,
		CouponLimiter: couponLimiter,
		Validate:      validator.New(validator.WithRequiredStructEnabled()),
		Logger:        logger,
		Checkout:      []func(http.Handler) http.Handler{common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}.Middleware},
	}

	authMiddleware := auth.Middleware{Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer), AccessCookie: "access_token"}
	csrf := security.CSRF{MaxAge: cfg.CSRFMaxAge, Secure: cfg.IsProduction()}
	throttle := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:cart:"},
		Config:  ratelimit.Config{Key: ratelimit.ClientCartKey, Window: cfg.MutationRateWindow, Max: cfg.MutationRateMax},
		Logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{HSTS: cfg.IsProduction()}.Middleware)
	if cfg.ObsEnableTracing {
		r.Use(obs.Tracing)
	}
	r.Use(authMiddleware.Authenticate)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", common.IdempotencyHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	if envBool("OBS_ENABLE_PPROF", false) {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), os.Getenv("SECURE_PPROF_BASIC_AUTH_USER"), os.Getenv("SECURE_PPROF_BASIC_AUTH_PASS")))
	}

	healthHandler := health.Handler{Probes: probes(redisClient, pool)}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/csrf", csrf.Issue)
		v.Group(func(g chi.Router) {
			g.Use(security.BodyLimit{}.Middleware)
			g.Use(csrf.Middleware)
			g.Use(throttle.Middleware)
			cartHandler.Routes(g)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Bool("postgres", pool != nil).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// usageRecorder enqueues coupon usage on the worker queue.
func usageRecorder(cfg *config.Config, logger zerolog.Logger) (*queue.Client, error) {
	opt, err := queue.RedisOpt(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("coupon usage is not recorded without a database")
		return &queue.Client{}, nil
	}
	return queue.NewClient(opt), nil
}

func probes(rdb *redis.Client, pool *pgxpool.Pool) []health.Probe {
	out := []health.Probe{{
		Name:    "redis",
		Timeout: 300 * time.Millisecond,
		Check:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}}
	if pool != nil {
		out = append(out, health.Probe{Name: "postgres", Timeout: 500 * time.Millisecond, Check: pool.Ping})
	}
	return out
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
