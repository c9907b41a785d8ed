package zerolog

import (
	"github.com/rs/zerolog"
	"github.com/unkn0wn-root/precache"
)

var _ precache.Logger = Logger{}

type Logger struct{ L zerolog.Logger }

func (z Logger) Debug(msg string, f precache.Fields) { with(z.L.Debug(), f).Msg(msg) }
func (z Logger) Info(msg string, f precache.Fields)  { with(z.L.Info(), f).Msg(msg) }
func (z Logger) Warn(msg string, f precache.Fields)  { with(z.L.Warn(), f).Msg(msg) }
func (z Logger) Error(msg string, f precache.Fields) { with(z.L.Error(), f).Msg(msg) }

// with is nil-safe: a disabled level yields a nil *Event.
func with(e *zerolog.Event, f precache.Fields) *zerolog.Event {
	if e == nil || len(f) == 0 {
		return e
	}
	for k, v := range f {
		if err, ok := v.(error); ok {
			e = e.AnErr(k, err)
			continue
		}
		e = e.Interface(k, v)
	}
	return e
}
