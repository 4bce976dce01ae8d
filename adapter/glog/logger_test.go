package glog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	require.NotPanics(t, func() {
		l.Debug("debug")
		l.Info("info", "k", "v")
		l.Warn("warn")
		l.Error("error", errors.New("boom"))
	})
	require.NotPanics(t, func() {
		New(nil).Info("info")
	})
}

func TestNewDefaultLogs(t *testing.T) {
	l := NewDefault("identity-test")
	require.NotNil(t, l)
	require.NotPanics(t, func() {
		l.Info("login succeeded", "user_id", "u-1")
		l.Error("login failed", errors.New("invalid_credentials"), "reason", "invalid_password")
	})
}
