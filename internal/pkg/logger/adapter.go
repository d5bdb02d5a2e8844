package logger

import (
	"log/slog"

	"futarchy_wallet/internal/app/port"
)

// slogAdapter реализует интерфейс port.Logger, используя глобальные функции пакета logger.
type slogAdapter struct{}

// NewSlogAdapter создает новый экземпляр slogAdapter.
func NewSlogAdapter() port.Logger {
	return &slogAdapter{}
}

func (a *slogAdapter) Info(msg string, args ...any)  { Info(msg, args...) }
func (a *slogAdapter) Debug(msg string, args ...any) { Debug(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { Error(msg, args...) }

// namedAdapter writes through its own slog.Logger with a fixed component attribute.
type namedAdapter struct {
	l *slog.Logger
}

// Named returns a port.Logger that tags every record with component=name.
func Named(name string) port.Logger {
	return &namedAdapter{l: current().With("component", name)}
}

// NewDiscard returns a port.Logger that drops every record.
func NewDiscard() port.Logger {
	return &namedAdapter{l: slog.New(discardHandler())}
}

func (a *namedAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *namedAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *namedAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *namedAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
