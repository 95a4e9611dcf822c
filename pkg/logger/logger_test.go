package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = InitWithWriter(&bytes.Buffer{}) }()

	ctx := context.Background()
	Get().Info(ctx, "window emitted",
		Int("start", 3),
		String("identifier", "frame_0003.tiff"),
		Bool("clamped", true),
		Duration("elapsed", 2*time.Second),
		Error(errors.New("boom")),
	)

	out := buf.String()
	for _, want := range []string{"window emitted", "start=3", "identifier=frame_0003.tiff", "clamped=true", "elapsed=2s", "error=boom", "source="} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = InitWithWriter(&bytes.Buffer{}) }()

	if err := SetFormat("json"); err != nil {
		t.Fatalf("set format: %v", err)
	}
	Named("scan").Warn(context.Background(), "skipped identifier", String("identifier", "notes.txt"))

	out := buf.String()
	if !strings.Contains(out, `"msg":"skipped identifier"`) || !strings.Contains(out, `"scan":{`) {
		t.Errorf("unexpected json output %q", out)
	}

	if err := SetFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithWriter(&buf); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = InitWithWriter(&bytes.Buffer{}) }()

	ctx := context.Background()
	Get().Debug(ctx, "hidden")
	if err := SetLevelString("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	Get().Debug(ctx, "shown")
	_ = SetLevelString("info")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected level filtering: %q", out)
	}
	if err := SetLevelString("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}
