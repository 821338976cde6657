package proofverifier

import (
	"go.uber.org/zap"
)

var (
	// Package-level logger for the verifier - use this directly
	logger *zap.Logger
)

func init() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
}

// SetLogger allows the main package to inject its configured logger
func SetLogger(l *zap.Logger) {
	if l != nil {
		logger = l.With(zap.String("package", "proofverifier"))
	}
}
