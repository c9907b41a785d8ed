package precache

import (
	"reflect"
	"testing"
)

type captureLogger struct {
	NopLogger
	got []Fields
}

func (c *captureLogger) Info(_ string, f Fields) { c.got = append(c.got, f) }

func TestWithFieldsMergesBase(t *testing.T) {
	c := &captureLogger{}
	l := WithFields(c, Fields{"namespace": "site", "generation": "cache-v1"})

	l.Info("generation installed", Fields{"generation": "cache-v2", "entries": 3})
	l.Info("listening", nil)

	want := []Fields{
		{"namespace": "site", "generation": "cache-v2", "entries": 3},
		{"namespace": "site", "generation": "cache-v1"},
	}
	if !reflect.DeepEqual(c.got, want) {
		t.Fatalf("fields = %v", c.got)
	}
	if WithFields(c, nil) != Logger(c) {
		t.Fatalf("empty base should return the logger unchanged")
	}
}
