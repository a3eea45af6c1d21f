package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vault-gateway/logging"
	"vault-gateway/middleware/ratelimit"
	"vault-gateway/middleware/ratelimit/infra"
)

func main() {
	logger, err := logging.New(true, logging.VERBOSE)
	if err != nil {
		panic(err)
	}

	// Exemplo: injetando os middlewares diretamente no seu webserver (sem proxy)
	store := infra.NewStore(5, 10, infra.WithTableSize(1024))
	pool := infra.NewVaultPool(50, infra.WithPoolLogger(logger.WithName("pool")))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	h := http.Handler(mux)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
		Pool:           pool,
		AcquireTimeout: 2 * time.Second,
		Logger:         logger.WithName("concurrency"),
	})(h)
	h = ratelimit.Middleware(ratelimit.Options{
		Store:               store,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		PreciseRetryAfter:   true,
	})(h)

	root := http.NewServeMux()
	root.Handle("/_vault/inflight", ratelimit.InFlightHandler(pool, logger.WithName("admin")))
	root.Handle("/", h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal(logger, err, "server error")
	}
}
