package vault_test

import (
	"fmt"
	"testing"

	"vault-gateway/vault"
)

func BenchmarkAllocate(b *testing.B) {
	for _, capacity := range []int{2 << 10, 16 << 10} {
		b.Run(fmt.Sprintf("cap=%d", capacity), func(b *testing.B) {
			v := vault.New[record](capacity)
			b.ResetTimer()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					view, ok := v.Allocate()
					if !ok {
						continue
					}
					idx := view.Index()
					view.Release()
					_, _ = v.Deallocate(idx)
				}
			})
		})
	}
}

func BenchmarkDeallocateFunc(b *testing.B) {
	v := vault.New[record](4096)
	for i := 0; i < v.Cap(); i++ {
		view, _ := v.Allocate()
		_ = view.Set(record{group: i % 16})
		view.Release()
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g := i % 16
		if v.DeallocateFunc(func(r record) bool { return r.group == g }) {
			view, ok := v.Allocate()
			if ok {
				_ = view.Set(record{group: g})
				view.Release()
			}
		}
	}
}
