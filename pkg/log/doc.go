// Package log provides Strand's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records go through the package's own
// formatter/outputs pipeline; a slog bridge handler routes slog records into
// that same pipeline, so slog-aware libraries can interoperate while the
// codebase logs through one facade.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("driver"))
//	l.Info("driver started", log.Str("dir", dir))
//
// The append fast path never logs; this facade serves the driver, conductor,
// servers and CLI. To capture stdlib log output from dependencies, use
// RedirectStdLog.
package log
