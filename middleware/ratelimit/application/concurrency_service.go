package application

import (
	"context"
	"time"

	"vault-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	// Now permite fixar o relógio em testes. nil usa time.Now.
	Now func() time.Time
}

// Acquire tenta adquirir uma vaga para req.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// - Se req.Start for zero, é preenchido com o relógio do serviço.
// Retorna (release, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context, req domain.Request) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	if req.Start.IsZero() {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		req.Start = now()
	}

	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx, req)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx, req)
}
