package siteinstaller

// Logger defines the interface for installer logging.
// It uses variadic key-value pairs so that any structured logger
// (slog, zap, logrus) can be adapted to it:
//
//	logger.Info("module installed", "module", "node", "schema", 7001)
type Logger interface {
	// Info logs install progress: stage transitions, installed modules.
	Info(msg string, args ...any)

	// Error logs a failure before it is returned to the caller.
	Error(msg string, args ...any)

	// Warn logs unusual but non-fatal conditions.
	Warn(msg string, args ...any)

	// Debug logs detailed diagnostics such as the computed install plan.
	Debug(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}
