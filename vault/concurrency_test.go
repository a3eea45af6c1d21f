package vault_test

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"vault-gateway/vault"
)

func fillConcurrently(t *testing.T, v *vault.Vault[record], workers int) (allocated, failed int64) {
	t.Helper()

	var ok, fail atomic.Int64
	var g errgroup.Group
	perWorker := v.Cap() / workers
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for n := 0; n < perWorker; n++ {
				view, inserted := v.Allocate()
				if !inserted {
					fail.Add(1)
					continue
				}
				p, err := view.Data()
				if err != nil {
					view.Release()
					return err
				}
				p.label = fmt.Sprintf("%d_%d", w+1, n+1)
				p.group = (w*perWorker + n) % 4
				view.Release()
				ok.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return ok.Load(), fail.Load()
}

func countLive(v *vault.Vault[record]) int {
	n := 0
	for range v.All() {
		n++
	}
	return n
}

func TestConcurrent_AllocateFillsExactly(t *testing.T) {
	for _, capacity := range []int{64, 1024, 4096} {
		for _, workers := range []int{1, 2, 8, 32} {
			t.Run(fmt.Sprintf("cap=%d/workers=%d", capacity, workers), func(t *testing.T) {
				t.Parallel()

				v := vault.New[record](capacity)
				allocated, failed := fillConcurrently(t, v, workers)

				assert.EqualValues(t, capacity, allocated)
				assert.Zero(t, failed)
				assert.Equal(t, capacity, v.Len())
				assert.Equal(t, capacity, countLive(v))
			})
		}
	}
}

func TestConcurrent_ViewHasNoLostUpdates(t *testing.T) {
	const (
		capacity = 1024
		workers  = 16
		actions  = 512
	)
	v := vault.New[record](capacity)
	fillConcurrently(t, v, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), 42))
			for k := 0; k < actions; k++ {
				view, err := v.View(rng.IntN(capacity))
				if err != nil {
					return err
				}
				if p, err := view.Data(); err == nil {
					p.counter++
				}
				view.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sum := 0
	for _, view := range v.All() {
		r, err := view.Get()
		require.NoError(t, err)
		sum += r.counter
	}
	assert.Equal(t, workers*actions, sum)
}

func TestConcurrent_DeallocateSameIndexExactlyOnce(t *testing.T) {
	const (
		capacity = 2048
		workers  = 32
	)
	v := vault.New[record](capacity)
	fillConcurrently(t, v, workers)

	var freed atomic.Int64
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			// todas as goroutines passam por todos os índices, em ordens diferentes
			for n := 0; n < capacity; n++ {
				idx := (n + w*7) % capacity
				ok, err := v.Deallocate(idx)
				if err != nil {
					return err
				}
				if ok {
					freed.Add(1)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, capacity, freed.Load())
	assert.Zero(t, v.Len())
	assert.Zero(t, countLive(v))
}

func TestConcurrent_DeallocateFuncDrainsMatchesOnce(t *testing.T) {
	const (
		capacity = 2048
		workers  = 32
	)
	v := vault.New[record](capacity)
	fillConcurrently(t, v, workers)

	isGroup1 := func(r record) bool { return r.group == 1 }
	matching := 0
	for _, view := range v.All() {
		r, err := view.Get()
		require.NoError(t, err)
		if isGroup1(r) {
			matching++
		}
	}
	require.Positive(t, matching)

	var freed atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for v.DeallocateFunc(isGroup1) {
				freed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, matching, freed.Load())
	assert.False(t, v.DeallocateFunc(isGroup1))
	assert.Equal(t, capacity-matching, v.Len())
	for _, view := range v.All() {
		r, err := view.Get()
		require.NoError(t, err)
		assert.False(t, isGroup1(r), "matching element survived the drain")
	}
}

func TestConcurrent_ReaderWaitsForAllocatorInitialization(t *testing.T) {
	v := vault.New[record](1)

	view, ok := v.Allocate()
	require.True(t, ok)

	got := make(chan record, 1)
	go func() {
		// o slot já está marcado como ocupado, mas o alocador ainda segura o lock
		r, err := v.View(0)
		if err != nil {
			close(got)
			return
		}
		defer r.Release()
		val, _ := r.Get()
		got <- val
	}()

	select {
	case <-got:
		t.Fatalf("reader observed the slot before the allocator released it")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, view.Set(record{counter: 99, label: "ready"}))
	view.Release()

	select {
	case r := <-got:
		assert.Equal(t, record{counter: 99, label: "ready"}, r)
	case <-time.After(time.Second):
		t.Fatalf("reader never acquired the slot")
	}
}

func TestConcurrent_IterationDuringChurn(t *testing.T) {
	const capacity = 256
	v := vault.New[record](capacity)

	stop := make(chan struct{})
	halt := sync.OnceFunc(func() { close(stop) })
	var g errgroup.Group
	// um require falhando dentro do loop sai via Goexit: os geradores de
	// churn ainda precisam parar
	t.Cleanup(func() {
		halt()
		_ = g.Wait()
	})
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), 7))
			for {
				select {
				case <-stop:
					return nil
				default:
				}
				if view, ok := v.Allocate(); ok {
					_ = view.Set(record{label: "churn"})
					view.Release()
				}
				if _, err := v.Deallocate(rng.IntN(capacity)); err != nil {
					return err
				}
			}
		})
	}

	for pass := 0; pass < 50; pass++ {
		prev := -1
		for i, view := range v.All() {
			require.Greater(t, i, prev, "iteration must never revisit a position")
			prev = i
			r, err := view.Get()
			require.NoError(t, err)
			require.Equal(t, "churn", r.label)
		}
	}

	halt()
	require.NoError(t, g.Wait())
	assert.LessOrEqual(t, v.Len(), capacity)
}
