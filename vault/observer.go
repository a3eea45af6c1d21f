package vault

// Observer recebe eventos do Vault. As chamadas acontecem na goroutine que
// executou a operação, então implementações precisam ser seguras para uso
// concorrente e baratas (contadores, por exemplo).
type Observer interface {
	// Allocated é chamado após um compare-and-swap livre→ocupado bem-sucedido.
	Allocated(index int)
	// AllocateFailed é chamado quando a varredura não encontrou slot livre.
	AllocateFailed()
	// AllocateRetried é chamado quando outro Allocate ganhou a disputa pelo slot.
	AllocateRetried()
	// Deallocated é chamado após uma transição ocupado→livre.
	Deallocated(index int)
}

type nopObserver struct{}

func (nopObserver) Allocated(int)    {}
func (nopObserver) AllocateFailed()  {}
func (nopObserver) AllocateRetried() {}
func (nopObserver) Deallocated(int)  {}

type options struct {
	observer Observer
}

type Option func(*options)

// WithObserver registra um Observer. nil mantém o observer padrão (no-op).
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}
