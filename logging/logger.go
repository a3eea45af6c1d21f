// Package logging monta o logger do gateway: logr como interface, zap por baixo.
package logging

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Níveis de verbosidade para logger.V(n).
const (
	DEFAULT = 2
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// New cria um logger. development troca o encoder JSON pelo de console.
// verbosity habilita logger.V(n) para todo n <= verbosity.
func New(development bool, verbosity int) (logr.Logger, error) {
	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	if verbosity < 0 {
		verbosity = 0
	}
	// zapr mapeia V(n) para o nível zap -n
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(-verbosity))
	// amostragem do zap descartaria eventos repetidos do pool
	cfg.Sampling = nil

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), fmt.Errorf("building zap logger: %w", err)
	}
	return zapr.NewLogger(zl), nil
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// This is a utility function and should not be used in production code!
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}

// NewTestLogger creates a new Zap logger using the dev mode.
func NewTestLogger() logr.Logger {
	logger, err := New(true, TRACE)
	if err != nil {
		return logr.Discard()
	}
	return logger
}

