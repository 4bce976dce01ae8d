package securelink

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingLinks struct {
	route    string
	payloads []types.SecureLinkPayload
	link     string
}

func (r *recordingLinks) Generate(route string, payloads ...types.SecureLinkPayload) (string, error) {
	r.route = route
	r.payloads = payloads
	return r.link, nil
}

func (r *recordingLinks) Validate(string) (map[string]any, error) { return nil, nil }

func (r *recordingLinks) GetExpiration() time.Duration { return time.Hour }

func TestResetTokenGenerator_QueryLink(t *testing.T) {
	links := &recordingLinks{link: "https://id.example.com/reset?token=abc.def.ghi"}
	gen := &ResetTokenGenerator{Links: links, QueryKey: "token"}
	user := types.User{ID: uuid.New(), Email: "tess@example.com"}
	expires := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	token, err := gen.GenerateResetToken(context.Background(), user, expires)
	require.NoError(t, err)
	require.Equal(t, "abc.def.ghi", token)
	require.Equal(t, DefaultResetRoute, links.route)
	require.Len(t, links.payloads, 1)
	require.Equal(t, user.ID.String(), links.payloads[0]["user_id"])
	require.Equal(t, ActionPasswordReset, links.payloads[0]["action"])
	require.Equal(t, "2026-05-01T10:00:00Z", links.payloads[0]["expires_at"])
}

func TestNewResetTokenGenerator_PathLink(t *testing.T) {
	links := &recordingLinks{link: "https://id.example.com/reset/signed-value"}
	gen := NewResetTokenGenerator(links, " account_reset ")

	token, err := gen.GenerateResetToken(context.Background(), types.User{ID: uuid.New()}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "signed-value", token)
	require.Equal(t, "account_reset", links.route)
}

func TestTokenFromLink(t *testing.T) {
	require.Equal(t, "tok", TokenFromLink("https://x.test/reset/tok", ""))
	require.Equal(t, "tok", TokenFromLink("https://x.test/reset?t=tok", "t"))
	require.Equal(t, "bare-token", TokenFromLink("bare-token", "t"))
}

func TestNilManager(t *testing.T) {
	var m *Manager
	_, err := m.Generate("x")
	require.Error(t, err)
	require.Zero(t, m.GetExpiration())
	_, err = (&ResetTokenGenerator{}).GenerateResetToken(context.Background(), types.User{}, time.Now())
	require.Error(t, err)
}
