package domain

import (
	"context"
	"time"
)

// StatsScope identifica qual limite gerou o evento.
type StatsScope string

const (
	ScopeRateLimit   StatsScope = "ratelimit"
	ScopeConcurrency StatsScope = "concurrency"
)

// StatsEvent representa um evento de decisão do rate limit ou do limite de
// concorrência.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas
// e podem ser usadas para web, gRPC, etc.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Scope   StatsScope
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// ScopeOrDefault retorna o escopo do evento, ou ScopeRateLimit se vazio.
func (e StatsEvent) ScopeOrDefault() StatsScope {
	if e.Scope == "" {
		return ScopeRateLimit
	}
	return e.Scope
}

// StatsStore é a estratégia de persistência para estatísticas dos limites.
//
// Implementações podem armazenar em Redis, Postgres, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
