package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dropgate/api/internal/auth"
	"dropgate/api/internal/config"
	"dropgate/api/internal/httputil"
	"dropgate/api/internal/metrics"
	"dropgate/api/internal/middleware"
	"dropgate/api/internal/ratelimit"
	"dropgate/api/internal/store"
	"dropgate/api/internal/token"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	configFlag := flag.String("config", "", "path to config file (overrides DROPGATE_CONFIG env var)")
	flag.Parse()

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("DROPGATE_CONFIG")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("port", cfg.Server.Port).
		Str("log_level", cfg.Logging.Level).
		Int("global_max", cfg.Limits.Global.Max).
		Int("global_window_min", cfg.Limits.Global.WindowMin).
		Int("slow_down_after", cfg.Limits.SlowDown.After).
		Int("slow_down_delay_ms", cfg.Limits.SlowDown.DelayMs).
		Int("login_max", cfg.Limits.Login.Max).
		Int("register_max", cfg.Limits.Register.Max).
		Int64("max_body_bytes", cfg.Limits.MaxBodyBytes).
		Strs("cors_origins", cfg.CORS.Origins).
		Bool("cors_allow_all_when_empty", cfg.CORS.AllowAllWhenEmpty).
		Msg("dropgate starting")
	if len(cfg.CORS.Origins) == 0 && cfg.CORS.AllowAllWhenEmpty {
		log.Warn().Msg("no CORS origins configured; allowing any origin (dev fallback)")
	}

	metrics.MustRegister()
	metrics.BuildInfo.Set(1)

	trustedNets, err := cfg.TrustedProxyNets()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid trusted proxies")
	}

	// Credential store: MySQL when a DSN is configured, in-memory otherwise.
	var credentials store.Credentials
	var health pinger
	if cfg.DB.DSN != "" {
		sqlStore, err := store.Open(cfg.DB.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open credential store")
		}
		defer sqlStore.Close()
		credentials = sqlStore
		health = sqlStore
		log.Info().Msg("credential store: mysql")
	} else {
		credentials = store.NewMemory()
		log.Warn().Msg("DB_DSN not set; using in-memory credential store (data lost on restart)")
	}

	issuer, err := token.NewIssuer(cfg.Token.Secret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token issuer")
	}

	// Throttling state, all process-local.
	globalWindow := ratelimit.NewWindow(cfg.Limits.Global.Max, cfg.Limits.Global.Window())
	slowDown := ratelimit.NewSlowDown(cfg.Limits.SlowDown.After, cfg.Limits.SlowDown.Delay(), cfg.Limits.SlowDown.Window())
	loginLimiter := ratelimit.NewRouteLimiter(cfg.Limits.Login.Max, cfg.Limits.Login.Window(), "Too many login attempts. Try again in a few minutes.")
	registerLimiter := ratelimit.NewRouteLimiter(cfg.Limits.Register.Max, cfg.Limits.Register.Window(), "Too many registration attempts. Try again later.")

	janitorDone := make(chan struct{})
	defer close(janitorDone)
	go globalWindow.Janitor(time.Minute, janitorDone)
	go slowDown.Janitor(time.Minute, janitorDone)
	go loginLimiter.Janitor(time.Minute, janitorDone)
	go registerLimiter.Janitor(time.Minute, janitorDone)

	authHandler := auth.NewHandler(credentials, issuer, loginLimiter, registerLimiter)

	router := mux.NewRouter()
	router.StrictSlash(true)
	authHandler.Routes(router)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.Ping(ctx); err != nil {
				httputil.GetLogger(r.Context()).Error().Err(err).Msg("health check failed")
				httputil.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, http.StatusNotFound, "Not found")
	})

	// Admission pipeline, innermost last: headers → pollution guard →
	// payload guard → origin allow-list → global limiter → slow-down →
	// route dispatch.
	allowlist := middleware.NewAllowlist(cfg.CORS.Origins, cfg.CORS.AllowAllWhenEmpty)
	var handler http.Handler = router
	handler = middleware.SlowDown(slowDown)(handler)
	handler = middleware.GlobalRateLimit(globalWindow)(handler)
	handler = allowlist.CORS(handler)
	handler = middleware.MaxBody(cfg.Limits.MaxBodyBytes)(handler)
	handler = middleware.CollapseParams(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.Recover(handler)
	handler = middleware.Request(log.Logger, trustedNets)(handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
