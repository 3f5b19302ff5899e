package logging

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey int

const loggerKey ctxKey = iota

var (
	defaultLogger     *zap.Logger
	defaultLoggerOnce sync.Once
)

// Options selects the logger flavour. Zero values mean production JSON at
// info level.
type Options struct {
	// Env "dev" or "development" switches to the colored console encoder.
	Env string
	// Level is any zapcore level name; unknown names are ignored.
	Level string
}

// OptionsFromEnv reads ENV and LOG_LEVEL.
func OptionsFromEnv() Options {
	return Options{
		Env:   os.Getenv("ENV"),
		Level: os.Getenv("LOG_LEVEL"),
	}
}

// Build returns a logger for opts, tagged with the service name.
func Build(opts Options) (*zap.Logger, error) {
	var config zap.Config
	if opts.Env == "dev" || opts.Env == "development" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.DisableCaller = false
	}

	if opts.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(opts.Level)); err == nil {
			config.Level = zap.NewAtomicLevelAt(level)
		}
	}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "imagegate")), nil
}

// NewLogger builds the process logger from the environment and exits if
// that fails; there is nowhere to report the error otherwise.
func NewLogger() *zap.Logger {
	logger, err := Build(OptionsFromEnv())
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to create logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}

// DefaultLogger is the process-wide logger, built on first use.
func DefaultLogger() *zap.Logger {
	defaultLoggerOnce.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the request logger, or DefaultLogger when none is set.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return DefaultLogger()
}

// L is shorthand for FromContext.
func L(ctx context.Context) *zap.Logger {
	return FromContext(ctx)
}

// WithFields adds structured fields to the logger in context.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(fields...))
}
