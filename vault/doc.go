// Package vault fornece um pool de objetos de capacidade fixa, seguro para uso
// concorrente.
//
// Um Vault é um array pré-alocado de slots. Cada slot tem o payload, um mutex
// exclusivo e uma flag atômica de ocupação. Goroutines podem, ao mesmo tempo:
//
//   - reservar um slot livre (Allocate)
//   - acessar um slot com exclusividade (View)
//   - liberar um slot por índice (Deallocate) ou por predicado (DeallocateFunc)
//   - percorrer os slots ocupados (Begin/End, All)
//
// # Views
//
// Toda leitura ou escrita do payload passa por uma View, que segura o mutex
// do slot até Release. O padrão é:
//
//	v, ok := pool.Allocate()
//	if !ok {
//	    // pool cheio no momento da varredura (não é erro)
//	}
//	defer v.Release()
//	p, _ := v.Data()
//	p.Field = 42
//
// Release libera apenas o mutex: o slot continua ocupado até Deallocate,
// DeallocateFunc ou View.Free.
//
// Uma View nunca sobrevive à memória que referencia: ela aponta para o slot e
// o coletor de lixo mantém o array vivo enquanto houver Views.
//
// # Concorrência
//
// Nenhuma operação bloqueia o pool inteiro. Cada chamada bloqueia no máximo
// no mutex de um único slot, e nunca segura dois mutexes ao mesmo tempo, então
// não existe ordem de travamento entre slots nem risco de deadlock.
//
// A flag de ocupação é a fonte de verdade sobre "slot presente". As transições
// de cada slot são totalmente ordenadas pelo compare-and-swap; entre slots
// diferentes não há garantia de ordem.
//
// # Consistência da iteração
//
// A iteração é fracamente consistente: ela não é um snapshot. Slots liberados
// ou reocupados durante a travessia podem aparecer, sumir ou ser vistos em
// qualquer um dos estados, dependendo do momento em que o cursor passa por
// eles. Posições já visitadas nunca são revisitadas na mesma passada. Com o
// pool parado, a iteração é exata.
//
// # Erros
//
// Índice fora de [0, Cap()) retorna *BoundsError (errors.Is(err,
// ErrOutOfRange)). Acesso ao payload de um slot livre, de uma View nil ou já
// liberada retorna ErrInvalidAccess. Pool cheio e liberação sem alvo são
// sinalizados por bool, não por erro.
package vault
