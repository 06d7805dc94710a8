package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestGuardHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	handler := &guardHandler{w: &buf, runID: "run-20260301T120000Z"}

	r := slog.NewRecord(
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		slog.LevelInfo, "snapshot captured", 0,
	)
	r.AddAttrs(slog.Int("roles", 12), slog.String("guild", "guild-1"))

	if err := handler.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	got := buf.String()
	want := "2026-03-01T12:00:00Z\tINFO\trun-20260301T120000Z\tsnapshot captured\troles=12\tguild=guild-1\n"
	if got != want {
		t.Errorf("log line = %q, want %q", got, want)
	}
}

func TestGuardHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := &guardHandler{w: &buf, runID: "run-1"}
	derived := base.WithAttrs([]slog.Attr{slog.String("component", "engine")})

	r := slog.NewRecord(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), slog.LevelWarn, "queue full", 0)
	if err := derived.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if !strings.Contains(buf.String(), "\tcomponent=engine") {
		t.Errorf("derived handler dropped pre-set attrs: %q", buf.String())
	}

	// The base handler is unchanged.
	buf.Reset()
	if err := base.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if strings.Contains(buf.String(), "component=") {
		t.Errorf("base handler inherited derived attrs: %q", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	logger, f, err := newLogger(dir, "run-1")
	if err != nil {
		t.Fatalf("newLogger failed: %v", err)
	}
	defer f.Close()

	logger.Info("started")
	// The file must exist and carry the run ID column.
	if f.Name() == "" {
		t.Fatal("log file has no name")
	}
}
