// vault-bench mede a alocação concorrente em vaults de vários tamanhos.
//
// Para cada tamanho e cada número de goroutines (de --min-threads a
// --max-threads, multiplicando por --multiplier), um vault novo é preenchido
// por goroutines que dividem o tamanho entre si. O relatório sai em JSON no
// stdout ou, com --out, gravado atomicamente no arquivo.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	natomic "github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"vault-gateway/vault"
)

type payload struct {
	counter int
	label   string
}

type options struct {
	sizes      []int
	minThreads int
	maxThreads int
	multiplier int
	iterations int
	out        string
}

// Result é uma linha do relatório. Allocated e Failures são médias por iteração.
type Result struct {
	Size       int     `json:"size"`
	Threads    int     `json:"threads"`
	Iterations int     `json:"iterations"`
	AvgMillis  float64 `json:"avg_ms"`
	Allocated  int64   `json:"allocated"`
	Failures   int64   `json:"failures"`
}

type Report struct {
	StartedAt time.Time `json:"started_at"`
	Results   []Result  `json:"results"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	report := Report{StartedAt: time.Now().UTC()}
	for _, size := range opts.sizes {
		for _, threads := range threadCounts(opts.minThreads, opts.maxThreads, opts.multiplier) {
			res, err := runCase(size, threads, opts.iterations)
			if err != nil {
				return fmt.Errorf("size %d threads %d: %w", size, threads, err)
			}
			report.Results = append(report.Results, res)
		}
	}

	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	buf = append(buf, '\n')

	if opts.out == "" {
		_, err = stdout.Write(buf)
		return err
	}
	if err := natomic.WriteFile(opts.out, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %d results to %s\n", len(report.Results), opts.out)
	return nil
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("vault-bench", flag.ContinueOnError)
	fs.IntSliceVar(&opts.sizes, "sizes", []int{2 << 10, 4 << 10, 8 << 10, 16 << 10, 32 << 10, 64 << 10, 128 << 10}, "vault capacities to benchmark")
	fs.IntVar(&opts.minThreads, "min-threads", 1, "smallest number of allocating goroutines")
	fs.IntVar(&opts.maxThreads, "max-threads", 128, "largest number of allocating goroutines")
	fs.IntVar(&opts.multiplier, "multiplier", 2, "goroutine count multiplier between runs")
	fs.IntVarP(&opts.iterations, "iterations", "n", 5, "iterations per case")
	fs.StringVarP(&opts.out, "out", "o", "", "write the JSON report to this file")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch {
	case len(opts.sizes) == 0:
		return options{}, errors.New("--sizes must not be empty")
	case opts.minThreads <= 0 || opts.maxThreads < opts.minThreads:
		return options{}, errors.New("--min-threads must be > 0 and <= --max-threads")
	case opts.multiplier < 2:
		return options{}, errors.New("--multiplier must be >= 2")
	case opts.iterations <= 0:
		return options{}, errors.New("--iterations must be > 0")
	}
	for _, s := range opts.sizes {
		if s <= 0 {
			return options{}, fmt.Errorf("invalid size %d", s)
		}
	}
	return opts, nil
}

// threadCounts retorna min, min*mult, ... até max (max sempre incluso).
func threadCounts(min, max, mult int) []int {
	var out []int
	for n := min; n < max; n *= mult {
		out = append(out, n)
	}
	return append(out, max)
}

func runCase(size, threads, iterations int) (Result, error) {
	perThread := size / threads
	var allocated, failures atomic.Int64
	var total time.Duration

	for it := 0; it < iterations; it++ {
		v := vault.New[payload](size)

		start := time.Now()
		var g errgroup.Group
		for t := 0; t < threads; t++ {
			g.Go(func() error {
				for n := 0; n < perThread; n++ {
					view, ok := v.Allocate()
					if !ok {
						failures.Add(1)
						continue
					}
					err := view.Set(payload{label: strconv.Itoa(t+1) + "_" + strconv.Itoa(n+1)})
					view.Release()
					if err != nil {
						return err
					}
					allocated.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}
		total += time.Since(start)
	}

	return Result{
		Size:       size,
		Threads:    threads,
		Iterations: iterations,
		AvgMillis:  float64(total.Microseconds()) / 1000 / float64(iterations),
		Allocated:  allocated.Load() / int64(iterations),
		Failures:   failures.Load() / int64(iterations),
	}, nil
}
