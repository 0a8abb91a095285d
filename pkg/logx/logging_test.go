package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDebugFnSkipsThunkWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "INFO")

	called := false
	log.DebugFn(func() string {
		called = true
		return "expensive"
	})
	if called {
		t.Fatal("debug thunk evaluated at info level")
	}
	if buf.Len() != 0 {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	log = NewWriter(&buf, "DEBUG")
	log.DebugFn(func() string { return "cheap now" }, String("k", "v"))
	out := buf.String()
	if !strings.Contains(out, "cheap now") || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("missing debug output: %q", out)
	}
}

func TestNopLoggerIsDisabled(t *testing.T) {
	if Nop().Enabled(LevelError) {
		t.Fatal("nop logger reports error level enabled")
	}
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	// Must not panic.
	zero.ErrorAsync(func() string { return "dropped" })
}

func TestErrorAsyncIsWrittenBeforeClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	svc, log := New(Config{
		Level: "INFO",
		File:  FileConfig{Enabled: true, Path: path},
		Async: AsyncConfig{QueueSize: 8, RatePerSec: 100},
	})
	log.With(String("comp", "test")).ErrorAsync(func() string { return "action blew up" }, Int("attempt", 3))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	for _, want := range []string{"action blew up", `"comp":"test"`, `"attempt":3`, `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log file missing %s: %q", want, out)
		}
	}
}

func TestErrorAsyncAfterCloseIsDropped(t *testing.T) {
	svc, log := New(Config{Level: "ERROR", File: FileConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "x.log")}})
	_ = svc.Close()
	log.ErrorAsync(func() string { return "late" })
	if svc.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", svc.Dropped())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"trace":   LevelTrace,
		" DEBUG ": LevelDebug,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
		"":        LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
