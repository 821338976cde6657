package shared

import (
	"go.uber.org/zap"
)

// LoggerConfig holds the configuration for the logger
type LoggerConfig struct {
	ServiceName string // "dlp-proof", "sign-input"
	Development bool   // true for development mode
	Quiet       bool   // errors only, used by batch jobs that only care about the result file
}

// Logger wraps zap.Logger with additional context
type Logger struct {
	*zap.Logger
	serviceName string
}

// NewLogger creates a new logger instance based on the configuration
func NewLogger(config LoggerConfig) (*Logger, error) {
	var zapLogger *zap.Logger
	var err error

	if config.Quiet {
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
		zapConfig.DisableCaller = true
		zapConfig.DisableStacktrace = true
		zapLogger, err = zapConfig.Build()
	} else if config.Development {
		// Development mode: console logging with debug level
		zapConfig := zap.NewDevelopmentConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		zapLogger, err = zapConfig.Build()
	} else {
		// Production mode: structured JSON logging
		zapConfig := zap.NewProductionConfig()
		zapConfig.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = zapConfig.Build()
	}

	if err != nil {
		return nil, err
	}

	zapLogger = zapLogger.With(zap.String("service", config.ServiceName))

	return &Logger{
		Logger:      zapLogger,
		serviceName: config.ServiceName,
	}, nil
}

// NewLoggerFromEnv creates a logger using environment variables
func NewLoggerFromEnv(serviceName string) (*Logger, error) {
	config := LoggerConfig{
		ServiceName: serviceName,
		Development: GetEnvBoolOrDefault("DEVELOPMENT", false),
		Quiet:       GetEnvBoolOrDefault("QUIET", false),
	}
	return NewLogger(config)
}

// WrapLogger adapts an existing zap logger, mostly for tests.
func WrapLogger(serviceName string, l *zap.Logger) *Logger {
	return &Logger{
		Logger:      l.With(zap.String("service", serviceName)),
		serviceName: serviceName,
	}
}

// Run-aware logging
func (l *Logger) WithRun(runID string) *zap.Logger {
	if runID == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("run_id", runID))
}

// Entry-aware logging
func (l *Logger) WithEntry(entryID string) *zap.Logger {
	if entryID == "" {
		return l.Logger
	}
	return l.Logger.With(zap.String("entry_id", entryID))
}

// Critical error logging
func (l *Logger) Critical(msg string, fields ...zap.Field) {
	l.Logger.Error(msg, append(fields, zap.Bool("critical", true))...)
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.Logger.Sync()
}
