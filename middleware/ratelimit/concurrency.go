package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"vault-gateway/logging"
	"vault-gateway/middleware/ratelimit/application"
	"vault-gateway/middleware/ratelimit/domain"
	"vault-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration

	// Pool permite compartilhar o pool com o InFlightHandler. Se nil, um
	// infra.VaultPool com Max vagas é criado.
	Pool  *infra.VaultPool
	KeyFn KeyFunc
	Stats domain.StatsStore
	// Logger zero descarta tudo.
	Logger logr.Logger
}

func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Pool == nil && opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc("", false)
	}
	log := opts.Logger

	pool := opts.Pool
	if pool == nil {
		pool = infra.NewVaultPool(opts.Max, infra.WithPoolLogger(log))
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := newRequest(r, opts.KeyFn)
			w.Header().Set(RequestIDHeader, req.ID)

			release, ok := svc.Acquire(r.Context(), req)
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Scope:   domain.ScopeConcurrency,
					Key:     req.Key,
					Allowed: ok,
					Method:  r.Method,
					Path:    r.URL.Path,
					At:      time.Now(),
				})
			}
			if !ok {
				log.V(logging.VERBOSE).Info("concurrency limit rejected request", "id", req.ID, "key", req.Key, "path", req.Path)
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
