package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"vault-gateway/logging"
	"vault-gateway/metrics"
	"vault-gateway/middleware/ratelimit"
	"vault-gateway/middleware/ratelimit/domain"
	"vault-gateway/middleware/ratelimit/infra"
	"vault-gateway/vault"
)

const inFlightPath = "/_vault/inflight"

func main() {
	cfg, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.logDev, cfg.logVerbosity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	setupLog := logger.WithName("setup")

	target, err := url.Parse(cfg.upstreamURL)
	if err != nil {
		logging.Fatal(setupLog, err, "invalid UPSTREAM_URL")
	}

	proxyLog := logger.WithName("proxy")
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		proxyLog.Error(err, "proxy error", "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	if cfg.metricsEnabled {
		metrics.Register(prometheus.DefaultRegisterer)
	}

	store := infra.NewStore(cfg.rateRPS, cfg.rateBurst,
		infra.WithTableSize(cfg.limiterTableSize),
		infra.WithTableObserver(observer(cfg, cfg.vaultName+"_limiters", cfg.limiterTableSize)),
	)

	var pool *infra.VaultPool
	if cfg.concurrencyMax > 0 {
		pool = infra.NewVaultPool(cfg.concurrencyMax,
			infra.WithPoolLogger(logger.WithName("pool")),
			infra.WithPoolObserver(observer(cfg, cfg.vaultName+"_inflight", cfg.concurrencyMax)),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	var statsStore domain.StatsStore
	if cfg.rateStatsEnabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.rateStatsRedisAddr,
			Password: cfg.rateStatsRedisPassword,
			DB:       cfg.rateStatsRedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
		_, err := rdb.Ping(pingCtx).Result()
		pingCancel()
		if err != nil {
			logging.Fatal(setupLog, err, "redis stats ping error", "addr", cfg.rateStatsRedisAddr)
		}

		redisStats := infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(cfg.rateStatsPrefix),
			infra.WithStatsTTL(cfg.rateStatsTTL),
			infra.WithStatsBucket(cfg.rateStatsBucket),
			infra.WithStatsTrackKeys(cfg.rateStatsTrackKeys),
		)
		statsStore = redisStats

		statsLog := logger.WithName("stats")
		onErr := func(err error) { statsLog.V(logging.DEBUG).Info("occupancy report failed", "err", err) }
		if pool != nil {
			redisStats.StartOccupancyReporter(ctx, cfg.vaultName+"_inflight", pool, cfg.occupancyEvery, onErr)
		}
		redisStats.StartOccupancyReporter(ctx, cfg.vaultName+"_limiters", limiterOccupancy{store}, cfg.occupancyEvery, onErr)
	}

	h := http.Handler(proxy)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Pool:           pool,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.concurrencyTimeout,
		KeyFn:          ratelimit.DefaultKeyFunc(cfg.rateKeyHeader, cfg.trustXFF),
		Stats:          statsStore,
		Logger:         logger.WithName("concurrency"),
	})(h)
	if cfg.rateEnabled {
		h = ratelimit.Middleware(ratelimit.Options{
			Store:               store,
			Stats:               statsStore,
			KeyHeader:           cfg.rateKeyHeader,
			TrustXForwardedFor:  cfg.trustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.retryAfter,
			AddRateLimitHeaders: cfg.addHeaders,
			PreciseRetryAfter:   cfg.preciseRetryAfter,
			Logger:              logger.WithName("ratelimit"),
		})(h)
	}

	mux := http.NewServeMux()
	if cfg.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	if cfg.adminEnabled && pool != nil {
		mux.Handle(inFlightPath, ratelimit.InFlightHandler(pool, logger.WithName("admin")))
	}
	mux.Handle("/", h)

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logStartup(setupLog, cfg, target)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal(setupLog, err, "server error")
	}
}

func observer(cfg config, name string, capacity int) vault.Observer {
	if !cfg.metricsEnabled {
		return nil
	}
	return metrics.NewVaultObserver(name, capacity)
}

// limiterOccupancy adapta a tabela de limiters para infra.OccupancySource.
type limiterOccupancy struct{ s *infra.Store }

func (l limiterOccupancy) Len() int      { return l.s.Len() }
func (l limiterOccupancy) Capacity() int { return l.s.TableSize() }

func logStartup(log logr.Logger, cfg config, target *url.URL) {
	log.Info("gateway listening", "addr", cfg.listenAddr, "upstream", target.String())
	log.Info("rate", "enabled", cfg.rateEnabled, "rps", cfg.rateRPS, "burst", cfg.rateBurst,
		"keyHeader", cfg.rateKeyHeader, "trustXFF", cfg.trustXFF, "tableSize", cfg.limiterTableSize)
	log.Info("rate-stats", "enabled", cfg.rateStatsEnabled, "redisAddr", cfg.rateStatsRedisAddr,
		"bucket", cfg.rateStatsBucket, "ttl", cfg.rateStatsTTL, "trackKeys", cfg.rateStatsTrackKeys)
	log.Info("concurrency", "max", cfg.concurrencyMax, "acquireTimeout", cfg.concurrencyTimeout, "vault", cfg.vaultName)
	log.Info("admin", "enabled", cfg.adminEnabled, "path", inFlightPath, "metrics", cfg.metricsEnabled)
}
