package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/extropian/motionsync/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	z := NewZerologAdapterWithLogger(zerolog.New(&buf))

	z.Warn("dropping malformed packet",
		ports.String("slot", "hip"),
		ports.Int("bytes", 100),
		ports.Duration("wait", 10*time.Millisecond),
		ports.Err(errors.New("boom")),
	)

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if got["level"] != "warn" {
		t.Errorf("level = %v, want warn", got["level"])
	}
	if got["slot"] != "hip" {
		t.Errorf("slot = %v, want hip", got["slot"])
	}
	if got["bytes"] != float64(100) {
		t.Errorf("bytes = %v, want 100", got["bytes"])
	}
	if got["error"] != "boom" {
		t.Errorf("error = %v, want boom", got["error"])
	}
	if got["message"] != "dropping malformed packet" {
		t.Errorf("message = %v", got["message"])
	}
}

func TestNoopLogger_SatisfiesLogger(t *testing.T) {
	var l ports.Logger = NewNoopLogger()
	l.Debug("debug", ports.String("k", "v"))
	l.Info("info")
	l.Warn("warn", ports.Err(errors.New("boom")))
	l.Error("error", ports.Int("n", 1))
}
