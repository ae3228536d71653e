package stemflow

import "log/slog"

// WarningKind identifies the type of a non-fatal condition.
type WarningKind string

const (
	// WarnDuplicateRegistration is emitted when a flow is registered
	// under a key that is already present.
	WarnDuplicateRegistration WarningKind = "duplicate_registration"

	// WarnEncryptionUnavailable is emitted when the registry serializes
	// or loads a snapshot with no encryption key configured; an
	// encrypted snapshot loaded without a key is skipped. A wrong key is
	// an error, not a warning.
	WarnEncryptionUnavailable WarningKind = "encryption_unavailable"

	// WarnStartupLoad is emitted when loading the startup registry
	// snapshot fails; startup continues regardless.
	WarnStartupLoad WarningKind = "startup_load"
)

// String returns the string representation of the WarningKind.
func (k WarningKind) String() string {
	return string(k)
}

// Warning is a structured record of a recoverable condition. Warnings
// are control-flow-free: emitting one never changes the outcome of the
// operation that produced it.
type Warning struct {
	Kind   WarningKind
	Detail string
}

// WarningHandler observes warnings. The registry accepts a handler so
// callers can route warnings to their own sink; the default handler
// logs them.
type WarningHandler func(Warning)

// MultiWarningHandler combines multiple handlers into one.
func MultiWarningHandler(handlers ...WarningHandler) WarningHandler {
	return func(w Warning) {
		for _, h := range handlers {
			if h != nil {
				h(w)
			}
		}
	}
}

// LogWarningHandler returns a handler that logs warnings through the
// given logger. A nil logger uses slog.Default.
func LogWarningHandler(logger *slog.Logger) WarningHandler {
	return func(w Warning) {
		l := logger
		if l == nil {
			l = slog.Default()
		}
		l.Warn(w.Detail, slog.String("kind", w.Kind.String()))
	}
}
