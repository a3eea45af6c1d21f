package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
// A camada de infra usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP, API key, usuário).
//
// A tabela de chaves tem capacidade fixa. Quando ela está cheia e nenhuma
// chave ociosa pode ser despejada, a implementação devolve um limiter
// compartilhado de transbordo, nunca nil.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// RetryHinter é implementado por limiters que sabem quanto falta para a
// próxima vaga no bucket.
type RetryHinter interface {
	RetryAfter() time.Duration
}
