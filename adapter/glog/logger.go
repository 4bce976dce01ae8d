// Package glog adapts go-logger loggers to the go-identity Logger port.
package glog

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/pkg/types"
	gologger "github.com/goliatone/go-logger/glog"
)

// Logger forwards go-identity log lines to a go-logger logger.
type Logger struct {
	l gologger.Logger
}

var _ types.Logger = (*Logger)(nil)

// New wraps an existing go-logger logger.
func New(l gologger.Logger) *Logger {
	return &Logger{l: l}
}

// NewDefault builds a named JSON logger at info level with rich error
// attributes.
func NewDefault(name string) *Logger {
	base := gologger.NewLogger(
		gologger.WithName(name),
		gologger.WithLevel(gologger.Info),
		gologger.WithAddSource(false),
		gologger.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	return New(base.GetLogger(name))
}

func (a *Logger) Debug(msg string, args ...any) {
	if a == nil || a.l == nil {
		return
	}
	a.l.Debug(msg, args...)
}

func (a *Logger) Info(msg string, args ...any) {
	if a == nil || a.l == nil {
		return
	}
	a.l.Info(msg, args...)
}

// Warn is not part of types.Logger but keeps parity with go-logger.
func (a *Logger) Warn(msg string, args ...any) {
	if a == nil || a.l == nil {
		return
	}
	a.l.Warn(msg, args...)
}

func (a *Logger) Error(msg string, err error, args ...any) {
	if a == nil || a.l == nil {
		return
	}
	if err != nil {
		args = append([]any{"error", err}, args...)
	}
	a.l.Error(msg, args...)
}
