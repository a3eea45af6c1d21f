package ratelimit

import (
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"vault-gateway/logging"
	"vault-gateway/middleware/ratelimit/application"
	"vault-gateway/middleware/ratelimit/domain"
)

type Options struct {
	Store               domain.LimiterStore
	Stats               domain.StatsStore
	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	// PreciseRetryAfter responde Retry-After com o tempo real de recarga do
	// token bucket quando ele passar de RetryAfter.
	PreciseRetryAfter bool
	// Logger zero descarta tudo.
	Logger logr.Logger
}

// rateInfo é exposto por stores com taxa única (ex: infra.Store).
type rateInfo interface {
	RPS() float64
	Burst() int
}

// tableInfo é exposto por stores de tabela limitada (infra.Store).
type tableInfo interface {
	Len() int
	TableSize() int
}

// rateLimiter é o estado montado uma vez por Middleware.
type rateLimiter struct {
	opts Options
	svc  application.Service
	log  logr.Logger
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}

	rl := &rateLimiter{
		opts: opts,
		svc: application.Service{
			Store:             opts.Store,
			RetryAfter:        opts.RetryAfter,
			PreciseRetryAfter: opts.PreciseRetryAfter,
		},
		log: opts.Logger,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := domain.Key(rl.opts.KeyFn(r))
			if rl.opts.AddRateLimitHeaders {
				rl.setHeaders(w.Header(), key)
			}

			dec := rl.svc.Decide(key)
			rl.record(r, key, dec.Allowed)
			if !dec.Allowed {
				rl.reject(w, r, key, dec)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *rateLimiter) setHeaders(h http.Header, key domain.Key) {
	h.Set("X-RateLimit-Key", string(key))
	if ri, ok := rl.opts.Store.(rateInfo); ok {
		h.Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(ri.Burst()))
	}
	if ti, ok := rl.opts.Store.(tableInfo); ok {
		h.Set("X-RateLimit-Table", formatInt(ti.Len())+"/"+formatInt(ti.TableSize()))
	}
}

// record é best-effort: erro de stats não derruba a requisição.
func (rl *rateLimiter) record(r *http.Request, key domain.Key, allowed bool) {
	if rl.opts.Stats == nil {
		return
	}
	_ = rl.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Scope:   domain.ScopeRateLimit,
		Key:     key,
		Allowed: allowed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      time.Now(),
	})
}

func (rl *rateLimiter) reject(w http.ResponseWriter, r *http.Request, key domain.Key, dec domain.Decision) {
	rl.log.V(logging.VERBOSE).Info("rate limit rejected request", "key", key, "path", r.URL.Path, "retryAfter", dec.RetryAfter)
	w.Header().Set("Retry-After", formatInt(int(dec.RetryAfter.Seconds())))
	http.Error(w, http.StatusText(rl.opts.RejectStatus), rl.opts.RejectStatus)
}
