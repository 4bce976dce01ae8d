package command

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func now(clock types.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now()
}

func logActivity(ctx context.Context, sink types.ActivitySink, record types.ActivityRecord) {
	if sink == nil {
		return
	}
	_ = sink.Log(ctx, record)
}

func emitActivityHook(ctx context.Context, hooks types.Hooks, record types.ActivityRecord) {
	if hooks.AfterActivity == nil {
		return
	}
	hooks.AfterActivity(ctx, record)
}

func emitLoginHook(ctx context.Context, hooks types.Hooks, event types.LoginEvent) {
	if hooks.AfterLogin == nil {
		return
	}
	hooks.AfterLogin(ctx, event)
}

func recordActivity(ctx context.Context, sink types.ActivitySink, hooks types.Hooks, record types.ActivityRecord) {
	logActivity(ctx, sink, record)
	emitActivityHook(ctx, hooks, record)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
