// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, acquire/timeout) sem net/http
//   - infra: implementações concretas sobre vault.Vault (tabela de token buckets,
//     pool de vagas), estatísticas em memória/Redis
//   - ratelimit (este pacote): middlewares HTTP, handler administrativo de vagas,
//     extração de chave e tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a chave do cliente (IP/header/XFF) e o ID da requisição (X-Request-Id)
//  2. Ocupa uma vaga do vault de concorrência com o domain.Request
//  3. Consulta o token bucket da chave na tabela de limiters
//  4. Se bloqueado, responde 503 (concorrência) ou 429 (rate limit)
//  5. Se permitido, chama o próximo handler (ex: reverse proxy) e libera a vaga ao final
//
// InFlightHandler lista as vagas ocupadas (GET) e libera as de uma chave (DELETE).
//
// Variáveis de ambiente e o arquivo GATEWAY_CONFIG do binário gateway (cmd/gateway)
// controlam o comportamento, como RATE_RPS, RATE_BURST, CONCURRENCY_MAX e
// LIMITER_TABLE_SIZE.
package ratelimit
