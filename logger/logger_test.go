package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line, got nothing")
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(line), &out); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", line, err)
	}
	return out
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	cfg := &Config{Level: "invalid-level", Format: "json", Output: "stdout"}
	l := New(cfg, "test")
	if l == nil {
		t.Fatal("expected logger to be created even with invalid level")
	}
}

func TestNewFromEnv(t *testing.T) {
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "json")
	defer os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("LOG_FORMAT")

	l := NewFromEnv("env-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", Format: "json"}, "flowrun")

	l.WithComponent(ComponentScheduler).Info("node completed", NodeFields("sum", "block", 1, 5*time.Millisecond))

	out := decodeLine(t, &buf)
	if out[FieldService] != "flowrun" {
		t.Errorf("expected service=flowrun, got %v", out[FieldService])
	}
	if out[FieldComponent] != ComponentScheduler {
		t.Errorf("expected component=scheduler, got %v", out[FieldComponent])
	}
	if out[FieldNode] != "sum" || out[FieldKind] != "block" {
		t.Errorf("unexpected node fields: %v", out)
	}
	if out["message"] != "node completed" {
		t.Errorf("unexpected message: %v", out["message"])
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "warn", Format: "json"}, "")
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered at warn level, got %q", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn to be written, got %q", buf.String())
	}
}

func TestWithContext_RunFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "debug", Format: "json"}, "")

	ctx := ContextWithRun(context.Background(), "run-1", "pipeline")
	ctx = ContextWithNode(ctx, "double")
	ctx = ContextWithDepth(ctx, 2)
	l.WithContext(ctx).Debug("dispatch")

	out := decodeLine(t, &buf)
	if out[FieldRunID] != "run-1" || out[FieldGraph] != "pipeline" || out[FieldNode] != "double" {
		t.Errorf("missing run fields: %v", out)
	}
	if out[FieldDepth] != float64(2) {
		t.Errorf("expected depth=2, got %v", out[FieldDepth])
	}
	if got := RunIDFromContext(ctx); got != "run-1" {
		t.Errorf("expected run-1, got %q", got)
	}
	if got := RunIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty run id, got %q", got)
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", Format: "json"}, "")
	l.WithError(errors.New("boom")).Error("failed")
	out := decodeLine(t, &buf)
	if out[FieldError] != "boom" {
		t.Errorf("expected error=boom, got %v", out[FieldError])
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Info("ignored", Fields("k", "v"))
	l.WithComponent("x").Error("ignored")
}

func TestSetGlobalLogger(t *testing.T) {
	orig := globalLogger
	defer func() { globalLogger = orig }()

	custom := Nop()
	SetGlobalLogger(custom)
	if GetGlobalLogger() != custom {
		t.Error("expected global logger to be replaced")
	}
	Info("package level")
	Debug("package level")
	Warn("package level")
	Error("package level")
}

func TestInit(t *testing.T) {
	orig := globalLogger
	defer func() { globalLogger = orig }()

	Init(Config{Level: "debug", Format: "json"})
	if GetGlobalLogger() == nil {
		t.Fatal("expected global logger after Init")
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatConsole {
		t.Errorf("expected format 'console', got %q", cfg.Format)
	}
	if cfg.Output != "stderr" {
		t.Errorf("expected output 'stderr', got %q", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Format: "json", Output: "stdout"}, false},
		{"bad level", Config{Level: "loud", Format: "json", Output: "stdout"}, true},
		{"bad format", Config{Level: "info", Format: "xml", Output: "stdout"}, true},
		{"bad output", Config{Level: "info", Format: "json", Output: "file"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("expected error=%v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterAndGet(t *testing.T) {
	l := Nop()
	Register("custom", l)
	if Get("custom") != l {
		t.Error("expected registered logger")
	}
	if Get("unregistered-component") == nil {
		t.Error("expected fallback logger for unregistered name")
	}
}

func TestRegisterDefaults(t *testing.T) {
	RegisterDefaults(Nop())
	for _, name := range []string{ComponentRegistry, ComponentLoader, ComponentScheduler, ComponentOperation, ComponentEngine} {
		registry.mu.RLock()
		_, ok := registry.loggers[name]
		registry.mu.RUnlock()
		if !ok {
			t.Errorf("expected %q to be registered", name)
		}
	}
}

func TestFields(t *testing.T) {
	f := Fields("a", 1, "b", "two", 3, "skipped", "dangling")
	if len(f) != 2 {
		t.Fatalf("expected 2 fields, got %d: %v", len(f), f)
	}
	if f["a"] != 1 || f["b"] != "two" {
		t.Errorf("unexpected fields %v", f)
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("load", errors.New("eof"))
	if ef[FieldOperation] != "load" || ef[FieldError] != "eof" {
		t.Errorf("unexpected error fields %v", ef)
	}
	df := DurationFields("run", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500ms, got %v", df[FieldDuration])
	}
	merged := MergeWithError(nil, errors.New("x"))
	if merged[FieldError] != "x" {
		t.Errorf("expected error=x, got %v", merged[FieldError])
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, &Config{Level: "info", Format: "console", NoColor: true}, "")
	l.Info("hello", Fields(FieldNode, "a"))
	out := buf.String()
	if !strings.Contains(out, "[INF]") || !strings.Contains(out, "hello") || !strings.Contains(out, "node:") {
		t.Errorf("unexpected console output %q", out)
	}
}
