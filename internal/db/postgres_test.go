package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapTraceLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zapTraceLogger(zap.New(core))

	logger.Log(context.Background(), tracelog.LogLevelDebug, "Query", map[string]any{"sql": "SELECT 1"})
	logger.Log(context.Background(), tracelog.LogLevelError, "Query", map[string]any{"err": "boom"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].ContextMap()["sql"] != "SELECT 1" {
		t.Errorf("unexpected debug entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("expected error level, got %s", entries[1].Level)
	}
}
