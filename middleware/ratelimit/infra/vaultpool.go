package infra

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"vault-gateway/logging"
	"vault-gateway/middleware/ratelimit/domain"
	"vault-gateway/vault"
)

// VaultPool é um domain.SlotPool de capacidade fixa em que cada vaga é um slot
// de um vault.Vault guardando o domain.Request que a ocupa.
//
// Acquire não bloqueia o pool inteiro: ele tenta reservar um slot e, se o vault
// estiver cheio, espera um aviso de liberação (ou o próximo poll) e tenta de
// novo até o ctx encerrar.
type VaultPool struct {
	slots *vault.Vault[poolEntry]
	freed chan struct{}
	gen   atomic.Uint64

	poll     time.Duration
	log      logr.Logger
	observer vault.Observer
	full     rate.Sometimes
}

// poolEntry guarda a requisição e o token de posse da vaga. O token vem de um
// contador do pool, então o cliente não consegue forjá-lo com X-Request-Id.
type poolEntry struct {
	req   domain.Request
	token uint64
}

func (e poolEntry) String() string {
	return fmt.Sprintf("%s %s %s %s", e.req.ID, e.req.Key, e.req.Method, e.req.Path)
}

type VaultPoolOption func(*VaultPool)

// WithPollInterval define de quanto em quanto tempo um Acquire em espera tenta
// de novo mesmo sem aviso de liberação.
func WithPollInterval(d time.Duration) VaultPoolOption {
	return func(p *VaultPool) {
		if d > 0 {
			p.poll = d
		}
	}
}

func WithPoolLogger(l logr.Logger) VaultPoolOption {
	return func(p *VaultPool) { p.log = l }
}

// WithPoolObserver repassa eventos do vault (ex: métricas Prometheus).
func WithPoolObserver(o vault.Observer) VaultPoolOption {
	return func(p *VaultPool) { p.observer = o }
}

// NewVaultPool cria um pool com `max` vagas. Entra em pânico se max <= 0.
func NewVaultPool(max int, opts ...VaultPoolOption) *VaultPool {
	p := &VaultPool{
		freed: make(chan struct{}, 1),
		poll:  5 * time.Millisecond,
		log:   logr.Discard(),
		full:  rate.Sometimes{Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	p.slots = vault.New[poolEntry](max, vault.WithObserver(p.observer))
	return p
}

// Acquire implementa domain.SlotPool. Se req.ID vier vazio, um UUID é gerado.
func (p *VaultPool) Acquire(ctx context.Context, req domain.Request) (func(), bool) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if idx, token, ok := p.claim(req); ok {
			var once sync.Once
			return func() {
				once.Do(func() { p.releaseSlot(idx, token) })
			}, true
		}

		p.full.Do(func() {
			p.log.Info("concurrency vault full, requests are waiting", "capacity", p.slots.Cap())
		})

		if timer == nil {
			timer = time.NewTimer(p.poll)
		} else {
			timer.Reset(p.poll)
		}

		select {
		case <-ctx.Done():
			p.log.V(logging.DEBUG).Info("slot acquire gave up", "key", req.Key, "reason", ctx.Err())
			return nil, false
		case <-p.freed:
		case <-timer.C:
		}
	}
}

func (p *VaultPool) claim(req domain.Request) (int, uint64, bool) {
	view, ok := p.slots.Allocate()
	if !ok {
		return -1, 0, false
	}
	defer view.Release()

	token := p.gen.Add(1)
	// slot recém-reservado sempre é válido enquanto seguramos a View
	_ = view.Set(poolEntry{req: req, token: token})
	return view.Index(), token, true
}

// releaseSlot só libera se o slot ainda guarda o token desta posse: depois de
// um Evict o índice pode ter sido reocupado, inclusive com o mesmo ID.
func (p *VaultPool) releaseSlot(idx int, token uint64) {
	view, err := p.slots.View(idx)
	if err != nil {
		return
	}
	defer view.Release()

	cur, err := view.Get()
	if err != nil || cur.token != token {
		p.log.V(logging.TRACE).Info("slot already evicted", "index", idx, "token", token)
		return
	}
	if view.Free() {
		p.signal()
	}
}

func (p *VaultPool) signal() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// Capacity implementa domain.InFlightTracker.
func (p *VaultPool) Capacity() int { return p.slots.Cap() }

// Len retorna quantas vagas estão ocupadas (valor indicativo).
func (p *VaultPool) Len() int { return p.slots.Len() }

// InFlight implementa domain.InFlightTracker percorrendo as vagas ocupadas.
func (p *VaultPool) InFlight() []domain.Request {
	out := make([]domain.Request, 0, p.slots.Len())
	for _, view := range p.slots.All() {
		ent, err := view.Get()
		if err != nil {
			continue
		}
		out = append(out, ent.req)
	}
	return out
}

// Evict implementa domain.InFlightTracker.
func (p *VaultPool) Evict(key domain.Key) int {
	n := p.slots.DrainFunc(func(e poolEntry) bool { return e.req.Key == key })
	for i := 0; i < n; i++ {
		p.signal()
	}
	if n > 0 {
		p.log.Info("evicted in-flight requests", "key", key, "count", n)
	}
	return n
}

// Dump escreve as vagas ocupadas para diagnóstico.
func (p *VaultPool) Dump(w io.Writer) error {
	return p.slots.Dump(w)
}
