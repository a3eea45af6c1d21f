package vault

import (
	"sync"
	"sync/atomic"
)

// slot é uma célula fixa do Vault.
//
// inUse só vai de false para true por compare-and-swap feito com mu travado
// (Allocate), e só volta para false com mu travado. data só tem significado
// enquanto inUse == true.
type slot[T any] struct {
	mu    sync.Mutex
	inUse atomic.Bool
	data  T
}

// release exige mu travado pelo chamador.
func (s *slot[T]) release() bool {
	if !s.inUse.CompareAndSwap(true, false) {
		return false
	}
	// zera para não segurar referências de um payload morto
	var zero T
	s.data = zero
	return true
}

// noCopy faz o go vet (copylocks) reclamar de cópias de View.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// View é o acesso exclusivo a um slot. Ela segura o mutex do slot desde a
// criação até Release.
//
// Uma *View nil é a View vazia: Valid retorna false, os acessores retornam
// ErrInvalidAccess e Release não faz nada.
//
// Uma View pertence à goroutine que a obteve e não deve ser compartilhada.
type View[T any] struct {
	_ noCopy

	owner    *Vault[T]
	s        *slot[T]
	index    int
	released bool
}

// Valid informa se a View ainda segura o mutex e o slot está ocupado.
//
// Como a flag só vira false com o mutex travado, o valor é estável durante a
// vida da View, exceto se a própria View chamar Free.
func (v *View[T]) Valid() bool {
	return v != nil && !v.released && v.s.inUse.Load()
}

// Index retorna a posição do slot no Vault, ou -1 para a View vazia.
func (v *View[T]) Index() int {
	if v == nil {
		return -1
	}
	return v.index
}

// Data retorna um ponteiro para o payload. O ponteiro só pode ser usado até
// Release.
func (v *View[T]) Data() (*T, error) {
	if v == nil {
		return nil, ErrInvalidAccess
	}
	if v.released {
		return nil, errViewReleased
	}
	if !v.s.inUse.Load() {
		return nil, ErrInvalidAccess
	}
	return &v.s.data, nil
}

// Get retorna uma cópia do payload.
func (v *View[T]) Get() (T, error) {
	p, err := v.Data()
	if err != nil {
		var zero T
		return zero, err
	}
	return *p, nil
}

// Set substitui o payload.
func (v *View[T]) Set(val T) error {
	p, err := v.Data()
	if err != nil {
		return err
	}
	*p = val
	return nil
}

// Free devolve o slot ao estado livre usando o mutex que a View já segura.
// Retorna true se esta chamada fez a transição. Depois de Free a View fica
// inválida, mas ainda precisa de Release.
func (v *View[T]) Free() bool {
	if v == nil || v.released {
		return false
	}
	if !v.s.release() {
		return false
	}
	v.owner.obs.Deallocated(v.index)
	return true
}

// Release solta o mutex do slot. Chamadas repetidas são no-op.
func (v *View[T]) Release() {
	if v == nil || v.released {
		return
	}
	v.released = true
	v.s.mu.Unlock()
}
