package logging

import "github.com/cwsmith/redev/types"

// fieldLogger prepends fixed key-value pairs to every message of a logger
// that has no native support for bound attributes.
type fieldLogger struct {
	next   types.Logger
	fields []any
}

// WithFields returns a logger that adds keysAndValues to every message.
//
// Parameters:
//   - l: Underlying logger (a NopLogger if nil)
//   - keysAndValues: Fixed pairs, e.g. "rank", 0, "role", "rendezvous"
//
// Returns:
//   - types.Logger: Decorated logger
func WithFields(l types.Logger, keysAndValues ...any) types.Logger {
	if l == nil {
		l = NewNop()
	}
	if len(keysAndValues) == 0 {
		return l
	}
	if sl, ok := l.(*SlogLogger); ok {
		return sl.With(keysAndValues...)
	}
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{next: fl.next, fields: append(append([]any(nil), fl.fields...), keysAndValues...)}
	}

	return &fieldLogger{next: l, fields: append([]any(nil), keysAndValues...)}
}

func (f *fieldLogger) with(keysAndValues []any) []any {
	out := make([]any, 0, len(f.fields)+len(keysAndValues))
	out = append(out, f.fields...)

	return append(out, keysAndValues...)
}

func (f *fieldLogger) Debug(msg string, keysAndValues ...any) {
	f.next.Debug(msg, f.with(keysAndValues)...)
}

func (f *fieldLogger) Info(msg string, keysAndValues ...any) {
	f.next.Info(msg, f.with(keysAndValues)...)
}

func (f *fieldLogger) Warn(msg string, keysAndValues ...any) {
	f.next.Warn(msg, f.with(keysAndValues)...)
}

func (f *fieldLogger) Error(msg string, keysAndValues ...any) {
	f.next.Error(msg, f.with(keysAndValues)...)
}

func (f *fieldLogger) Fatal(msg string, keysAndValues ...any) {
	f.next.Fatal(msg, f.with(keysAndValues)...)
}
