// vaulty é um REPL para experimentar um vault.Vault[string] em memória.
//
// Usage:
//
//	vaulty [-c capacity]
//
// Commands (in REPL):
//
//	alloc <text>       Ocupa um slot livre com text
//	get <i>            Mostra o payload do slot i
//	set <i> <text>     Troca o payload do slot i
//	free <i>           Libera o slot i
//	drop <substr>      Libera o primeiro slot cujo payload contém substr
//	drain <substr>     Libera todos os slots cujo payload contém substr
//	ls                 Lista os slots ocupados
//	len                Conta os slots ocupados
//	cap                Mostra a capacidade
//	dump               Dump bruto do vault
//	fill               Ocupa todos os slots livres
//	help               Mostra esta ajuda
//	exit / quit / q    Sai
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"vault-gateway/vault"
)

var commands = []string{
	"alloc", "get", "set", "free", "drop", "drain",
	"ls", "len", "cap", "dump", "fill",
	"help", "exit", "quit", "q",
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("vaulty", flag.ContinueOnError)
	capacity := fs.IntP("capacity", "c", 16, "number of slots")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *capacity <= 0 {
		return errors.New("capacity must be > 0")
	}

	r := &REPL{v: vault.New[string](*capacity), out: os.Stdout}
	return r.Run()
}

// REPL é o loop interativo.
type REPL struct {
	v     *vault.Vault[string]
	out   io.Writer
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".vaulty_history")
}

// Run inicia o loop até quit ou EOF.
func (r *REPL) Run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}
	defer r.saveHistory()

	fmt.Fprintf(r.out, "vaulty - vault de %d slots\n", r.v.Cap())
	fmt.Fprintln(r.out, "Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("vaulty> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nBye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if r.exec(line) {
			fmt.Fprintln(r.out, "Bye!")
			return nil
		}
	}
}

func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func completer(line string) []string {
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

// exec roda uma linha de comando e retorna true se o REPL deve sair.
func (r *REPL) exec(line string) bool {
	cmd, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		r.printHelp()
	case "alloc":
		r.cmdAlloc(rest)
	case "get":
		r.cmdGet(rest)
	case "set":
		r.cmdSet(rest)
	case "free":
		r.cmdFree(rest)
	case "drop":
		r.cmdDrop(rest)
	case "drain":
		r.cmdDrain(rest)
	case "ls":
		r.cmdLs()
	case "len":
		fmt.Fprintln(r.out, r.v.Len())
	case "cap":
		fmt.Fprintln(r.out, r.v.Cap())
	case "dump":
		if err := r.v.Dump(r.out); err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	case "fill":
		r.cmdFill()
	default:
		fmt.Fprintf(r.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  alloc <text>       Ocupa um slot livre com text")
	fmt.Fprintln(r.out, "  get <i>            Mostra o payload do slot i")
	fmt.Fprintln(r.out, "  set <i> <text>     Troca o payload do slot i")
	fmt.Fprintln(r.out, "  free <i>           Libera o slot i")
	fmt.Fprintln(r.out, "  drop <substr>      Libera o primeiro slot cujo payload contém substr")
	fmt.Fprintln(r.out, "  drain <substr>     Libera todos os slots cujo payload contém substr")
	fmt.Fprintln(r.out, "  ls                 Lista os slots ocupados")
	fmt.Fprintln(r.out, "  len                Conta os slots ocupados")
	fmt.Fprintln(r.out, "  cap                Mostra a capacidade")
	fmt.Fprintln(r.out, "  dump               Dump bruto do vault")
	fmt.Fprintln(r.out, "  fill               Ocupa todos os slots livres")
	fmt.Fprintln(r.out, "  help               Mostra esta ajuda")
	fmt.Fprintln(r.out, "  exit / quit / q    Sai")
}

func (r *REPL) cmdAlloc(text string) {
	view, ok := r.v.Allocate()
	if !ok {
		fmt.Fprintln(r.out, "vault full")
		return
	}
	defer view.Release()

	if err := view.Set(text); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "allocated %d\n", view.Index())
}

func (r *REPL) parseIndex(s string) (int, bool) {
	i, err := strconv.Atoi(s)
	if err != nil {
		fmt.Fprintf(r.out, "invalid index: %q\n", s)
		return 0, false
	}
	return i, true
}

func (r *REPL) cmdGet(arg string) {
	i, ok := r.parseIndex(arg)
	if !ok {
		return
	}
	view, err := r.v.View(i)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	defer view.Release()

	val, err := view.Get()
	if err != nil {
		fmt.Fprintf(r.out, "slot %d is free\n", i)
		return
	}
	fmt.Fprintf(r.out, "%d %s\n", i, val)
}

func (r *REPL) cmdSet(arg string) {
	idx, text, _ := strings.Cut(arg, " ")
	i, ok := r.parseIndex(idx)
	if !ok {
		return
	}
	view, err := r.v.View(i)
	if err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	defer view.Release()

	if err := view.Set(strings.TrimSpace(text)); err != nil {
		fmt.Fprintf(r.out, "slot %d is free\n", i)
		return
	}
	fmt.Fprintf(r.out, "updated %d\n", i)
}

func (r *REPL) cmdFree(arg string) {
	i, ok := r.parseIndex(arg)
	if !ok {
		return
	}
	freed, err := r.v.Deallocate(i)
	switch {
	case err != nil:
		fmt.Fprintf(r.out, "error: %v\n", err)
	case freed:
		fmt.Fprintf(r.out, "freed %d\n", i)
	default:
		fmt.Fprintf(r.out, "slot %d already free\n", i)
	}
}

func (r *REPL) cmdDrop(substr string) {
	if r.v.DeallocateFunc(func(s string) bool { return strings.Contains(s, substr) }) {
		fmt.Fprintln(r.out, "dropped 1")
		return
	}
	fmt.Fprintln(r.out, "no match")
}

func (r *REPL) cmdDrain(substr string) {
	n := r.v.DrainFunc(func(s string) bool { return strings.Contains(s, substr) })
	fmt.Fprintf(r.out, "drained %d\n", n)
}

func (r *REPL) cmdLs() {
	n := 0
	for i, view := range r.v.All() {
		if val, err := view.Get(); err == nil {
			fmt.Fprintf(r.out, "%4d  %s\n", i, val)
			n++
		}
	}
	fmt.Fprintf(r.out, "(%d/%d)\n", n, r.v.Cap())
}

func (r *REPL) cmdFill() {
	n := 0
	for {
		view, ok := r.v.Allocate()
		if !ok {
			break
		}
		_ = view.Set("slot_" + strconv.Itoa(view.Index()))
		view.Release()
		n++
	}
	fmt.Fprintf(r.out, "filled %d\n", n)
}
