package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestBuildLevels(t *testing.T) {
	logger, err := Build(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}

	// Unknown levels fall back to the config default.
	logger, err = Build(Options{Env: "dev", Level: "chatty"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("development config should log debug")
	}
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := WithLogger(context.Background(), base)
	ctx = WithFields(ctx, zap.String("request_id", "r-1"))

	L(ctx).Info("origin_decision", zap.String("decision", "cache-hit"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "r-1" || fields["decision"] != "cache-hit" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestFromContextDefaults(t *testing.T) {
	if FromContext(context.Background()) != DefaultLogger() {
		t.Fatalf("expected default logger for bare context")
	}
}
