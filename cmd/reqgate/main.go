package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/ReqGate/internal/auth"
	"github.com/AlexKimmel/ReqGate/internal/config"
	"github.com/AlexKimmel/ReqGate/internal/gateway"
	"github.com/AlexKimmel/ReqGate/internal/obs"
	"github.com/AlexKimmel/ReqGate/internal/proxy"
	"github.com/AlexKimmel/ReqGate/internal/ratelimit"
	"github.com/AlexKimmel/ReqGate/internal/ratelimit/memory"
	"github.com/AlexKimmel/ReqGate/internal/routing"
	"github.com/AlexKimmel/ReqGate/internal/stats"
)

const version = "v0.1.0"

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)

	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil || upstream.Host == "" {
		logger.Fatal().Err(err).Str("url", cfg.Upstream.URL).Msg("invalid upstream url")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	// ops endpoints bypass the gate and metrics
	skip := map[string]struct{}{
		"/health":  {},
		"/version": {},
	}
	skip[cfg.Observability.PrometheusPath] = struct{}{}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})
	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", proxy.Handler(upstream, proxy.NewHTTPTransport(), cfg.Upstream.Timeout()))

	// auth collaborators: session token first, then static API keys
	pairs := map[string]string{} // secret -> user id
	for _, k := range cfg.Auth.Keys {
		if k.Secret != "" && k.UserID != "" {
			pairs[k.Secret] = k.UserID
		}
	}
	resolvers := auth.Chain{auth.NewStatic(cfg.Auth.Header, pairs)}
	if cfg.Auth.JWTSecret != "" {
		resolvers = append(auth.Chain{auth.NewSession(cfg.Auth.JWTSecret, cfg.Auth.SessionCookie)}, resolvers...)
	} else {
		logger.Warn().Msg("AUTH_JWT_SECRET not set; session tokens are ignored")
	}

	var recorder stats.Recorder
	if cfg.Stats.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Stats.RedisAddr,
			Password: cfg.Stats.RedisPassword,
			DB:       cfg.Stats.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Stats.RedisAddr).Msg("redis stats unreachable; continuing without")
		} else {
			// writes happen off the request path; a slow or dead redis only drops events
			async := stats.NewAsync(
				stats.NewRedis(rdb,
					stats.WithPrefix(cfg.Stats.Prefix),
					stats.WithTTL(cfg.Stats.TTL()),
					stats.WithTrackKeys(cfg.Stats.TrackKeys),
				),
				stats.WithErrorHandler(func(err error) {
					logger.Warn().Err(err).Msg("stats record failed")
				}),
			)
			defer func() { _ = async.Close() }()
			metrics.TrackStatsDropped(reg, async.Dropped)
			recorder = async
		}
	}

	// one store for the life of the process
	store := memory.NewStore()
	limiter := memory.New(store)
	defer func() { _ = limiter.Close() }()
	metrics.TrackKeys(reg, store.Size)

	routes := routing.New(routing.Rules{
		API:       cfg.Routes.API,
		Protected: cfg.Routes.Protected,
		AuthOnly:  cfg.Routes.AuthOnly,
	})

	gate := gateway.New(gateway.Options{
		Limiter:  limiter,
		Routes:   routes,
		Resolver: resolvers,
		Policy: ratelimit.Policy{
			WindowSeconds: cfg.Limits.WindowSeconds,
			MaxRequests:   cfg.Limits.MaxRequests,
		},
		Clock:       ratelimit.SystemClock,
		Stats:       recorder,
		Skip:        skip,
		LoginPath:   cfg.Routes.LoginPath,
		LandingPath: cfg.Routes.LandingPath,
		OnDecision:  metrics.OnDecision,
		OnAuthError: metrics.OnAuthError,
	})

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		metrics.Middleware(skip, routes),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		gate.Middleware(),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("upstream", upstream.String()).
			Int("window_seconds", cfg.Limits.WindowSeconds).
			Int("max_requests", cfg.Limits.MaxRequests).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}
