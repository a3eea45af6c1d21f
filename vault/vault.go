package vault

import (
	"fmt"
	"io"
)

// Vault é um pool de capacidade fixa de valores T.
//
// O valor zero não é utilizável; use New.
type Vault[T any] struct {
	slots []slot[T]
	obs   Observer
}

// New cria um Vault com capacity slots, todos livres. Entra em pânico se
// capacity <= 0.
func New[T any](capacity int, opts ...Option) *Vault[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("vault: capacity must be > 0, got %d", capacity))
	}
	o := options{observer: nopObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Vault[T]{
		slots: make([]slot[T], capacity),
		obs:   o.observer,
	}
}

// Cap retorna a capacidade fixa do Vault.
func (v *Vault[T]) Cap() int { return len(v.slots) }

// Len conta os slots ocupados. É só indicativo: o valor pode mudar logo depois
// da leitura.
func (v *Vault[T]) Len() int {
	n := 0
	for i := range v.slots {
		if v.slots[i].inUse.Load() {
			n++
		}
	}
	return n
}

// Allocate reserva o primeiro slot livre (menor índice) e retorna uma View
// sobre ele, com o mutex travado e o payload no valor zero.
//
// ok == false significa que a varredura não achou slot livre. Isso é
// informativo: um slot pode ter sido liberado logo em seguida.
func (v *Vault[T]) Allocate() (*View[T], bool) {
	for {
		i := v.firstFree()
		if i < 0 {
			v.obs.AllocateFailed()
			return nil, false
		}

		s := &v.slots[i]
		// O mutex é travado ANTES do compare-and-swap. Quem chegar depois em
		// View(i), DeallocateFunc ou na iteração vê inUse == true, mas bloqueia
		// no mutex até o alocador inicializar o payload e chamar Release.
		// Inverter a ordem exporia um slot ocupado e ainda não inicializado.
		s.mu.Lock()
		if s.inUse.CompareAndSwap(false, true) {
			v.obs.Allocated(i)
			return v.newView(i), true
		}
		// outro Allocate ganhou o slot entre a varredura e o lock
		s.mu.Unlock()
		v.obs.AllocateRetried()
	}
}

// View trava o slot i e retorna uma View sobre ele. Bloqueia enquanto outra
// goroutine segurar o slot. O chamador deve conferir Valid antes de acessar o
// payload.
func (v *Vault[T]) View(i int) (*View[T], error) {
	if err := v.checkBounds(i); err != nil {
		return nil, err
	}
	v.slots[i].mu.Lock()
	return v.newView(i), nil
}

// Deallocate libera o slot i. Retorna true se esta chamada fez a transição
// ocupado→livre, false se o slot já estava livre. Chamadas concorrentes no
// mesmo índice resultam em exatamente um true.
func (v *Vault[T]) Deallocate(i int) (bool, error) {
	if err := v.checkBounds(i); err != nil {
		return false, err
	}

	s := &v.slots[i]
	s.mu.Lock()
	ok := s.release()
	s.mu.Unlock()

	if ok {
		v.obs.Deallocated(i)
	}
	return ok, nil
}

// DeallocateFunc libera o primeiro slot ocupado (em ordem de índice) cujo
// payload satisfaz pred, e retorna true. Retorna false se nenhum slot ocupado
// satisfaz pred ao fim da varredura.
//
// pred roda com o mutex do slot travado e recebe uma cópia do payload; ele não
// deve bloquear nem chamar o Vault. Cada chamada libera no máximo um slot:
// várias goroutines com o mesmo predicado dividem os slots entre si até não
// sobrar nenhum. Para esvaziar, use DrainFunc ou repita a chamada.
func (v *Vault[T]) DeallocateFunc(pred func(T) bool) bool {
	if pred == nil {
		return false
	}
	for i := range v.slots {
		if v.releaseIf(i, pred) {
			v.obs.Deallocated(i)
			return true
		}
	}
	return false
}

// DrainFunc repete DeallocateFunc até não sobrar slot que satisfaça pred e
// retorna quantos slots esta chamada liberou.
func (v *Vault[T]) DrainFunc(pred func(T) bool) int {
	n := 0
	for v.DeallocateFunc(pred) {
		n++
	}
	return n
}

// Dump escreve "<índice> <payload>" para cada slot ocupado. Só para
// diagnóstico.
func (v *Vault[T]) Dump(w io.Writer) error {
	for i, view := range v.All() {
		p, err := view.Data()
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "%d %v\n", i, *p); err != nil {
			return err
		}
	}
	return nil
}

func (v *Vault[T]) releaseIf(i int, pred func(T) bool) bool {
	s := &v.slots[i]
	// slot livre não tem payload para testar
	if !s.inUse.Load() {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inUse.Load() || !pred(s.data) {
		return false
	}
	return s.release()
}

func (v *Vault[T]) firstFree() int {
	for i := range v.slots {
		if !v.slots[i].inUse.Load() {
			return i
		}
	}
	return -1
}

func (v *Vault[T]) nextOccupied(from int) int {
	for i := from; i < len(v.slots); i++ {
		if v.slots[i].inUse.Load() {
			return i
		}
	}
	return len(v.slots)
}

func (v *Vault[T]) checkBounds(i int) error {
	if i < 0 || i >= len(v.slots) {
		return &BoundsError{Index: i, Cap: len(v.slots)}
	}
	return nil
}

// newView exige o mutex do slot i travado.
func (v *Vault[T]) newView(i int) *View[T] {
	return &View[T]{owner: v, s: &v.slots[i], index: i}
}
