package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange indica índice fora de [0, Cap()).
	ErrOutOfRange = errors.New("vault: index out of range")

	// ErrInvalidAccess indica acesso ao payload sem slot ocupado por trás da View.
	ErrInvalidAccess = errors.New("vault: no such data")

	errViewReleased = fmt.Errorf("%w: view already released", ErrInvalidAccess)
)

// BoundsError descreve um índice fora dos limites do Vault.
type BoundsError struct {
	Index int
	Cap   int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("vault: index %d out of range [0, %d)", e.Index, e.Cap)
}

func (e *BoundsError) Unwrap() error { return ErrOutOfRange }
