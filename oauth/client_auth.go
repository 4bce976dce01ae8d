package oauth

import (
	"context"
	"strings"

	"github.com/goliatone/go-identity/pkg/types"
)

func invalidClient() error {
	return types.NewOAuthError(types.ErrorInvalidClient, "client authentication failed")
}

// authenticateClient verifies the secret of confidential clients. Public
// clients pass without a secret.
func authenticateClient(hasher types.PasswordHasher, client *types.Client, secret string) error {
	if client == nil || !client.IsActive {
		return invalidClient()
	}
	if !client.IsConfidential() {
		return nil
	}
	if hasher == nil || secret == "" || client.SecretHash == "" {
		return invalidClient()
	}
	if !hasher.Verify(client.SecretHash, secret) {
		return invalidClient()
	}
	return nil
}

// loadClient resolves an active client or fails with invalid_client.
func loadClient(ctx context.Context, repo types.ClientRepository, clientID string) (*types.Client, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, invalidClient()
	}
	client, err := repo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, types.NewServerError(err, "")
	}
	if client == nil || !client.IsActive {
		return nil, invalidClient()
	}
	return client, nil
}
