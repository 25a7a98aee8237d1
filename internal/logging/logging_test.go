package logging

import (
	"bytes"
	"log/slog"
	"testing"
)

func TestDefault_NilFallsBackToDiscard(t *testing.T) {
	logger := Default(nil)
	if logger == nil {
		t.Fatal("expected a non-nil logger")
	}
	// Discard loggers must not panic and must produce no output.
	logger.Info("should be discarded")
}

func TestDefault_PassesThroughNonNil(t *testing.T) {
	var buf bytes.Buffer
	want := slog.New(slog.NewTextHandler(&buf, nil))
	got := Default(want)
	if got != want {
		t.Fatal("expected Default to return the provided logger unchanged")
	}
}

func TestRoleFilterHandler_FiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := NewRoleFilterHandler(base, slog.LevelInfo)
	logger := slog.New(filter).With("role", "storageserver")

	logger.Debug("below default, dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected debug record to be filtered, got output: %s", buf.String())
	}

	logger.Info("at default, kept")
	if buf.Len() == 0 {
		t.Fatal("expected info record to pass the default level")
	}
}

func TestRoleFilterHandler_PerRoleOverride(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	filter := NewRoleFilterHandler(base, slog.LevelInfo)
	filter.SetLevel("client", slog.LevelDebug)

	logger := slog.New(filter).With("role", "client")
	logger.Debug("debug now allowed for client role")
	if buf.Len() == 0 {
		t.Fatal("expected debug record to pass after per-role override")
	}
}
