package oauth

import (
	"context"

	"github.com/goliatone/go-identity/pkg/types"
)

func safeClock(clock types.Clock) types.Clock {
	if clock != nil {
		return clock
	}
	return types.SystemClock{}
}

func safeIDGen(gen types.IDGenerator) types.IDGenerator {
	if gen != nil {
		return gen
	}
	return types.UUIDGenerator{}
}

func safeLogger(logger types.Logger) types.Logger {
	if logger != nil {
		return logger
	}
	return types.NopLogger{}
}

func logActivity(ctx context.Context, sink types.ActivitySink, hooks types.Hooks, record types.ActivityRecord) {
	if sink != nil {
		_ = sink.Log(ctx, record)
	}
	if hooks.AfterActivity != nil {
		hooks.AfterActivity(ctx, record)
	}
}

func emitTokenHook(ctx context.Context, hooks types.Hooks, event types.TokenEvent) {
	if hooks.AfterTokens == nil {
		return
	}
	hooks.AfterTokens(ctx, event)
}
