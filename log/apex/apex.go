package apex

import (
	"github.com/apex/log"
	"github.com/unkn0wn-root/precache"
)

var _ precache.Logger = Logger{}

type Logger struct{ L log.Interface }

func (a Logger) Debug(msg string, f precache.Fields) { a.L.WithFields(fields(f)).Debug(msg) }
func (a Logger) Info(msg string, f precache.Fields)  { a.L.WithFields(fields(f)).Info(msg) }
func (a Logger) Warn(msg string, f precache.Fields)  { a.L.WithFields(fields(f)).Warn(msg) }
func (a Logger) Error(msg string, f precache.Fields) { a.L.WithFields(fields(f)).Error(msg) }

// errors are flattened to strings; handlers marshal them as {} otherwise.
func fields(f precache.Fields) log.Fields {
	out := make(log.Fields, len(f))
	for k, v := range f {
		if err, ok := v.(error); ok {
			out[k] = err.Error()
			continue
		}
		out[k] = v
	}
	return out
}
