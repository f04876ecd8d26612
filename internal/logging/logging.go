package logging

import "go.uber.org/zap"

type Logger = zap.SugaredLogger

// New builds the process logger. Verbose lowers the level to debug.
func New(verbose bool) *Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, _ := cfg.Build()
	return l.Sugar()
}
