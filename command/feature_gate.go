package command

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	featuregate "github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
)

const (
	featureSignup        = "identity.signup"
	featurePasswordReset = "identity.password_reset"
)

func featureEnabled(ctx context.Context, gate featuregate.FeatureGate, key string, userID uuid.UUID) (bool, error) {
	if gate == nil {
		return true, nil
	}
	if userID == uuid.Nil {
		return gate.Enabled(ctx, key)
	}
	return gate.Enabled(ctx, key, featuregate.WithScopeSet(featuregate.ScopeSet{
		System: true,
		UserID: userID.String(),
	}))
}

func featureDisabled(sentinel error) error {
	return goerrors.Wrap(sentinel, goerrors.CategoryAuthz, "feature disabled").
		WithCode(goerrors.CodeForbidden).
		WithTextCode(types.ErrorFeatureDisabled)
}
