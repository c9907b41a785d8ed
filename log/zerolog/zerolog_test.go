package zerolog

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/unkn0wn-root/precache"
)

func TestLoggerFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: zerolog.New(&buf).Level(zerolog.InfoLevel)}

	l.Debug("dropped", precache.Fields{"x": 1})
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered, got %q", buf.String())
	}

	l.Error("could not delete stale generation", precache.Fields{
		"generation": "cache-v2",
		"err":        errors.New("redis down"),
	})
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["level"] != "error" || got["generation"] != "cache-v2" || got["err"] != "redis down" {
		t.Fatalf("record = %v", got)
	}
}
