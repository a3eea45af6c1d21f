package application

import (
	"time"

	"vault-gateway/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	// PreciseRetryAfter usa o tempo de recarga informado pelo limiter
	// (domain.RetryHinter) quando ele for maior que RetryAfter.
	PreciseRetryAfter bool
}

func (s Service) Decide(key domain.Key) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	if lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	retry := s.RetryAfter
	if h, ok := lim.(domain.RetryHinter); ok && s.PreciseRetryAfter {
		if d := h.RetryAfter(); d > retry {
			retry = d
		}
	}
	return domain.Decision{Allowed: false, RetryAfter: retry}
}
