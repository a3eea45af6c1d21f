package domain

import (
	"context"
	"time"
)

// Request é o registro de uma requisição em andamento. Cada requisição aceita
// pelo limite de concorrência ocupa uma vaga do pool com o seu Request.
type Request struct {
	ID     string
	Key    Key
	Method string
	Path   string
	Start  time.Time
}

// SlotPool representa um recurso com capacidade finita (ex: conexões concorrentes).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, a vaga guarda req e é retornada uma função de release. Chamar
// release mais de uma vez é seguro (só a primeira libera).
type SlotPool interface {
	Acquire(ctx context.Context, req Request) (release func(), ok bool)
}

// InFlightTracker expõe as requisições que ocupam vagas no momento.
//
// InFlight não é um snapshot: vagas liberadas ou ocupadas durante a leitura
// podem ou não aparecer.
type InFlightTracker interface {
	Capacity() int
	InFlight() []Request
	// Evict libera todas as vagas cuja chave é key e retorna quantas liberou.
	// A requisição continua rodando; só a vaga volta para o pool.
	Evict(key Key) int
}
