package precache

// Fields carries structured log fields. Keys are camelCase.
type Fields map[string]any

// Logger is the leveled logger the worker, registration and handler write
// to. Adapters for zap, zerolog, logrus, slog and apex live under log/.
// A nil Logger in Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// WithFields returns a Logger that adds base to every entry. Fields passed
// per call win over base.
func WithFields(l Logger, base Fields) Logger {
	if len(base) == 0 {
		return l
	}
	return fieldsLogger{l: l, base: base}
}

type fieldsLogger struct {
	l    Logger
	base Fields
}

func (f fieldsLogger) Debug(msg string, fs Fields) { f.l.Debug(msg, f.merge(fs)) }
func (f fieldsLogger) Info(msg string, fs Fields)  { f.l.Info(msg, f.merge(fs)) }
func (f fieldsLogger) Warn(msg string, fs Fields)  { f.l.Warn(msg, f.merge(fs)) }
func (f fieldsLogger) Error(msg string, fs Fields) { f.l.Error(msg, f.merge(fs)) }

func (f fieldsLogger) merge(fs Fields) Fields {
	out := make(Fields, len(f.base)+len(fs))
	for k, v := range f.base {
		out[k] = v
	}
	for k, v := range fs {
		out[k] = v
	}
	return out
}
