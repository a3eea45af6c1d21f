package vault

import "iter"

// Cursor percorre os slots ocupados em ordem de índice. Ele relê as flags a
// cada avanço, então não é um snapshot (veja a documentação do pacote).
type Cursor[T any] struct {
	v   *Vault[T]
	pos int
}

// Begin retorna um cursor no primeiro slot ocupado, ou End se não houver.
func (v *Vault[T]) Begin() Cursor[T] {
	return Cursor[T]{v: v, pos: v.nextOccupied(0)}
}

// End retorna o cursor de fim (posição Cap()).
func (v *Vault[T]) End() Cursor[T] {
	return Cursor[T]{v: v, pos: len(v.slots)}
}

// Next avança para o próximo slot ocupado estritamente depois da posição
// atual. No fim, fica no fim.
func (c *Cursor[T]) Next() {
	if c.Done() {
		return
	}
	c.pos = c.v.nextOccupied(c.pos + 1)
}

// View trava o slot atual e retorna uma View. Pode bloquear. Retorna nil no
// fim. O slot pode ter sido liberado entre o avanço e o lock: confira Valid.
func (c Cursor[T]) View() *View[T] {
	if c.Done() {
		return nil
	}
	c.v.slots[c.pos].mu.Lock()
	return c.v.newView(c.pos)
}

// Index retorna a posição atual.
func (c Cursor[T]) Index() int { return c.pos }

// Done informa se o cursor chegou ao fim.
func (c Cursor[T]) Done() bool { return c.pos >= len(c.v.slots) }

// Equal compara apenas a posição.
func (c Cursor[T]) Equal(o Cursor[T]) bool { return c.pos == o.pos }

// All percorre os slots ocupados entregando (índice, View). A View é liberada
// quando o corpo do loop retorna, então não pode ser guardada. Slots liberados
// entre o avanço e o lock são pulados.
//
//	for i, view := range pool.All() {
//	    p, _ := view.Data()
//	    ...
//	}
func (v *Vault[T]) All() iter.Seq2[int, *View[T]] {
	return func(yield func(int, *View[T]) bool) {
		for c := v.Begin(); !c.Done(); c.Next() {
			view := c.View()
			if !view.Valid() {
				view.Release()
				continue
			}
			if !yieldView(yield, c.pos, view) {
				return
			}
		}
	}
}

func yieldView[T any](yield func(int, *View[T]) bool, i int, view *View[T]) bool {
	defer view.Release()
	return yield(i, view)
}
