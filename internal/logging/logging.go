package logging

import (
	"context"
	"maps"
)

const (
	RootModule     = "tcat"
	CatalogModule  = "tcat.catalog"
	ServerModule   = "tcat.server"
	ImporterModule = "tcat.engine"
	StorageModule  = "tcat.storage"
)

// Logger is the leveled logging contract used across the catalog. It matches
// the method set of github.com/goliatone/go-logger loggers.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// Provider hands out named loggers.
type Provider interface {
	GetLogger(name string) Logger
}

// FieldsLogger is implemented by loggers that can carry persistent fields.
type FieldsLogger interface {
	WithFields(fields map[string]any) Logger
}

// WithFields attaches structured fields when the logger supports it.
func WithFields(logger Logger, fields map[string]any) Logger {
	if logger == nil || len(fields) == 0 {
		return logger
	}
	if fl, ok := logger.(FieldsLogger); ok {
		copied := make(map[string]any, len(fields))
		maps.Copy(copied, fields)
		return fl.WithFields(copied)
	}
	return logger
}

// ModuleLogger returns a module-scoped logger, or a no-op logger when provider is nil.
func ModuleLogger(provider Provider, module string) Logger {
	if module == "" {
		module = RootModule
	}
	var logger Logger = NoOp()
	if provider != nil {
		if l := provider.GetLogger(module); l != nil {
			logger = l
		}
	}
	return WithFields(logger, map[string]any{"module": module})
}

// NoOp returns a logger that drops every entry.
func NoOp() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Trace(string, ...any) {}
func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
func (noopLogger) Fatal(string, ...any) {}

func (n noopLogger) WithFields(map[string]any) Logger   { return n }
func (n noopLogger) WithContext(context.Context) Logger { return n }
