package vault_test

import (
	"bytes"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-gateway/vault"
)

type record struct {
	counter int
	label   string
	group   int
}

func fill(t *testing.T, v *vault.Vault[record]) {
	t.Helper()
	for i := 0; i < v.Cap(); i++ {
		view, ok := v.Allocate()
		require.True(t, ok, "allocate %d", i)
		require.NoError(t, view.Set(record{label: "r", group: i % 3}))
		view.Release()
	}
}

func TestNew_PanicsOnNonPositiveCapacity(t *testing.T) {
	assert.Panics(t, func() { vault.New[record](0) })
	assert.Panics(t, func() { vault.New[record](-1) })
}

func TestAllocate_FillsToCapacityThenFails(t *testing.T) {
	v := vault.New[record](1024)

	for i := 0; i < 1024; i++ {
		view, ok := v.Allocate()
		require.True(t, ok, "allocate %d should succeed", i)
		require.Equal(t, i, view.Index(), "scan should claim lowest free index")
		view.Release()
	}

	view, ok := v.Allocate()
	assert.False(t, ok)
	assert.Nil(t, view)
	assert.False(t, view.Valid())
	assert.Equal(t, 1024, v.Len())
	assert.Equal(t, 1024, v.Cap())
}

func TestAllocate_ReusesFreedSlotWithZeroPayload(t *testing.T) {
	v := vault.New[record](4)
	fill(t, v)

	ok, err := v.Deallocate(2)
	require.NoError(t, err)
	require.True(t, ok)

	view, ok := v.Allocate()
	require.True(t, ok)
	defer view.Release()

	assert.Equal(t, 2, view.Index())
	got, err := view.Get()
	require.NoError(t, err)
	assert.Equal(t, record{}, got, "freed slot must come back zeroed")
}

func TestView_OutOfRangeReturnsBoundsError(t *testing.T) {
	v := vault.New[record](8)

	for _, idx := range []int{-1, 8, 100} {
		view, err := v.View(idx)
		require.Error(t, err)
		assert.Nil(t, view)
		assert.ErrorIs(t, err, vault.ErrOutOfRange)

		var be *vault.BoundsError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, idx, be.Index)
		assert.Equal(t, 8, be.Cap)
	}
}

func TestView_UnoccupiedSlotIsInvalid(t *testing.T) {
	v := vault.New[record](2)

	view, err := v.View(1)
	require.NoError(t, err)
	defer view.Release()

	assert.False(t, view.Valid())
	_, err = view.Data()
	assert.ErrorIs(t, err, vault.ErrInvalidAccess)
	assert.ErrorIs(t, view.Set(record{counter: 1}), vault.ErrInvalidAccess)
}

func TestView_WritesAreVisibleToNextView(t *testing.T) {
	v := vault.New[record](2)

	view, ok := v.Allocate()
	require.True(t, ok)
	p, err := view.Data()
	require.NoError(t, err)
	p.counter = 7
	p.label = "seven"
	view.Release()

	again, err := v.View(0)
	require.NoError(t, err)
	defer again.Release()

	got, err := again.Get()
	require.NoError(t, err)
	assert.Equal(t, record{counter: 7, label: "seven"}, got)
}

func TestView_ReleasedViewRejectsAccess(t *testing.T) {
	v := vault.New[record](1)

	view, ok := v.Allocate()
	require.True(t, ok)
	view.Release()
	view.Release() // idempotente

	assert.False(t, view.Valid())
	_, err := view.Data()
	assert.ErrorIs(t, err, vault.ErrInvalidAccess)
	assert.False(t, view.Free(), "released view must not free the slot")
	assert.Equal(t, 1, v.Len())
}

func TestView_NilViewIsEmpty(t *testing.T) {
	var view *vault.View[record]

	assert.False(t, view.Valid())
	assert.Equal(t, -1, view.Index())
	_, err := view.Get()
	assert.ErrorIs(t, err, vault.ErrInvalidAccess)
	assert.False(t, view.Free())
	assert.NotPanics(t, view.Release)
}

func TestView_FreeByHolder(t *testing.T) {
	v := vault.New[record](3)
	fill(t, v)

	view, err := v.View(1)
	require.NoError(t, err)
	assert.True(t, view.Free())
	assert.False(t, view.Free(), "second Free must report no transition")
	assert.False(t, view.Valid())
	view.Release()

	assert.Equal(t, 2, v.Len())
	ok, err := v.Deallocate(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeallocate_ByIndex(t *testing.T) {
	v := vault.New[record](4)
	fill(t, v)

	ok, err := v.Deallocate(3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Deallocate(3)
	require.NoError(t, err)
	assert.False(t, ok, "duplicate deallocation is a no-op")

	_, err = v.Deallocate(4)
	assert.ErrorIs(t, err, vault.ErrOutOfRange)

	assert.Equal(t, 3, v.Len())
}

func TestDeallocateFunc_NoMatchLeavesPoolFull(t *testing.T) {
	v := vault.New[record](10)
	fill(t, v)

	assert.False(t, v.DeallocateFunc(func(r record) bool { return r.label == "missing" }))
	assert.False(t, v.DeallocateFunc(nil))
	assert.Equal(t, 10, v.Len())
}

func TestDeallocateFunc_FirstMatchWins(t *testing.T) {
	v := vault.New[record](9)
	fill(t, v)

	// group = i % 3, então o grupo 2 está nos índices 2, 5, 8
	inGroup2 := func(r record) bool { return r.group == 2 }

	require.True(t, v.DeallocateFunc(inGroup2))
	view, err := v.View(2)
	require.NoError(t, err)
	assert.False(t, view.Valid(), "lowest matching index should be freed first")
	view.Release()

	view, err = v.View(5)
	require.NoError(t, err)
	assert.True(t, view.Valid())
	view.Release()

	assert.Equal(t, 8, v.Len())
}

func TestDrainFunc_FreesEveryMatch(t *testing.T) {
	v := vault.New[record](9)
	fill(t, v)

	n := v.DrainFunc(func(r record) bool { return r.group == 0 })
	assert.Equal(t, 3, n)
	assert.Equal(t, 6, v.Len())
	assert.Zero(t, v.DrainFunc(func(r record) bool { return r.group == 0 }))
}

func TestRefill_AfterPartialDeallocation(t *testing.T) {
	const capacity = 64
	v := vault.New[record](capacity)
	fill(t, v)

	for i := 0; i < capacity; i += 4 {
		ok, err := v.Deallocate(i)
		require.NoError(t, err)
		require.True(t, ok)
	}
	freed := capacity / 4

	seen := make(map[int]bool)
	for i := 0; i < freed; i++ {
		view, ok := v.Allocate()
		require.True(t, ok)
		require.Zero(t, view.Index()%4, "refill must only land on freed slots")
		require.False(t, seen[view.Index()], "slot %d claimed twice", view.Index())
		seen[view.Index()] = true
		view.Release()
	}

	assert.Equal(t, capacity, v.Len())
	_, ok := v.Allocate()
	assert.False(t, ok)
}

func TestDump_WritesOccupiedSlots(t *testing.T) {
	v := vault.New[string](4)
	for _, s := range []string{"a", "b", "c"} {
		view, ok := v.Allocate()
		require.True(t, ok)
		require.NoError(t, view.Set(s))
		view.Release()
	}
	_, err := v.Deallocate(1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, v.Dump(&buf))
	assert.Equal(t, "0 a\n2 c\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestDump_PropagatesWriteError(t *testing.T) {
	v := vault.New[string](2)
	view, ok := v.Allocate()
	require.True(t, ok)
	view.Release()

	err := v.Dump(failingWriter{})
	assert.ErrorContains(t, err, "disk full")

	// o lock do slot precisa ter sido solto mesmo com o erro
	again, err := v.View(0)
	require.NoError(t, err)
	again.Release()
}

type countingObserver struct {
	allocated, failed, retried, deallocated atomic.Int64
}

func (o *countingObserver) Allocated(int)    { o.allocated.Add(1) }
func (o *countingObserver) AllocateFailed()  { o.failed.Add(1) }
func (o *countingObserver) AllocateRetried() { o.retried.Add(1) }
func (o *countingObserver) Deallocated(int)  { o.deallocated.Add(1) }

func TestObserver_ReceivesEvents(t *testing.T) {
	obs := &countingObserver{}
	v := vault.New[record](3, vault.WithObserver(obs))
	fill(t, v)

	_, ok := v.Allocate()
	assert.False(t, ok)

	_, err := v.Deallocate(0)
	require.NoError(t, err)
	_, err = v.Deallocate(0)
	require.NoError(t, err)
	v.DeallocateFunc(func(record) bool { return true })

	view, err := v.View(2)
	require.NoError(t, err)
	view.Free()
	view.Release()

	assert.EqualValues(t, 3, obs.allocated.Load())
	assert.EqualValues(t, 1, obs.failed.Load())
	assert.EqualValues(t, 0, obs.retried.Load())
	assert.EqualValues(t, 3, obs.deallocated.Load())
}

func TestWithObserver_NilKeepsDefault(t *testing.T) {
	v := vault.New[record](1, vault.WithObserver(nil))
	view, ok := v.Allocate()
	require.True(t, ok)
	view.Release()
}
