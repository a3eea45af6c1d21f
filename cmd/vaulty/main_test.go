package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vault-gateway/vault"
)

func newTestREPL(capacity int) (*REPL, *bytes.Buffer) {
	var buf bytes.Buffer
	return &REPL{v: vault.New[string](capacity), out: &buf}, &buf
}

func runLines(r *REPL, buf *bytes.Buffer, lines ...string) string {
	buf.Reset()
	for _, l := range lines {
		r.exec(l)
	}
	return buf.String()
}

func TestREPL_AllocGetSetFree(t *testing.T) {
	r, buf := newTestREPL(2)

	out := runLines(r, buf, "alloc hello world", "get 0")
	assert.Equal(t, "allocated 0\n0 hello world\n", out)

	out = runLines(r, buf, "set 0 bye", "get 0", "free 0", "free 0", "get 0")
	assert.Equal(t, "updated 0\n0 bye\nfreed 0\nslot 0 already free\nslot 0 is free\n", out)
}

func TestREPL_FullAndOutOfRange(t *testing.T) {
	r, buf := newTestREPL(1)

	out := runLines(r, buf, "fill", "alloc x", "len", "cap")
	assert.Equal(t, "filled 1\nvault full\n1\n1\n", out)

	out = runLines(r, buf, "get 7")
	assert.Contains(t, out, "out of range")

	out = runLines(r, buf, "get abc")
	assert.Equal(t, "invalid index: \"abc\"\n", out)
}

func TestREPL_DropAndDrain(t *testing.T) {
	r, buf := newTestREPL(4)
	runLines(r, buf, "alloc job-a", "alloc job-b", "alloc other", "alloc job-c")

	out := runLines(r, buf, "drop job", "ls")
	require.True(t, strings.HasPrefix(out, "dropped 1\n"))
	assert.NotContains(t, out, "job-a", "first match is freed")
	assert.Contains(t, out, "(3/4)")

	out = runLines(r, buf, "drain job", "drain job", "len")
	assert.Equal(t, "drained 2\ndrained 0\n1\n", out)
}

func TestREPL_DumpAndQuit(t *testing.T) {
	r, buf := newTestREPL(3)
	runLines(r, buf, "alloc a", "alloc b", "free 0")

	out := runLines(r, buf, "dump")
	assert.Equal(t, "1 b\n", out)

	assert.True(t, r.exec("quit"))
	assert.False(t, r.exec("nope"))
}

func TestCompleter(t *testing.T) {
	assert.ElementsMatch(t, []string{"drop", "drain", "dump"}, completer("d"))
	assert.Empty(t, completer("zz"))
}
