// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - VaultPool: vagas de concorrência em um vault.Vault, com a requisição que
//     ocupa cada vaga (listagem e despejo por chave)
//   - Store: token bucket por chave usando golang.org/x/time/rate, com a tabela
//     de chaves limitada por um vault.Vault
//   - MemoryStatsStore / RedisStatsStore: contadores de decisões
package infra
