// Package log provides hose's structured logging facade.
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. It is backed by the standard library
// slog, which keeps output consistent across the codebase while allowing
// the handler (text or JSON) to be swapped via configuration.
//
// Quick start:
//
//	l := log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormat(log.FormatText))
//	l = l.With(log.Component("worker"))
//	l.Info("worker started", log.Str("channel", ch))
package log
