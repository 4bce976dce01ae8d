package scope

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDeduplicatesAndKeepsOrder(t *testing.T) {
	require.Equal(t, []string{"openid", "profile", "email"}, Parse("  openid profile openid\temail "))
	require.Nil(t, Parse("   "))
}

func TestFormatRoundTrip(t *testing.T) {
	require.Equal(t, "openid profile", Format([]string{"openid", "", "profile", "openid"}))
}

func TestSubset(t *testing.T) {
	granted := []string{"openid", "profile", "email"}

	require.True(t, Subset([]string{"profile", "openid"}, granted))
	require.True(t, Subset(nil, granted))
	require.False(t, Subset([]string{"openid", "offline_access"}, granted))
	require.False(t, Subset([]string{"openid"}, nil))
}

func TestIntersectUsesRequestOrder(t *testing.T) {
	got := Intersect([]string{"email", "admin", "openid"}, []string{"openid", "profile", "email"})
	require.Equal(t, []string{"email", "openid"}, got)
}

func TestUnion(t *testing.T) {
	got := Union([]string{"openid", "profile"}, []string{"profile", "offline_access"})
	require.Equal(t, []string{"openid", "profile", "offline_access"}, got)
	require.True(t, Contains(got, "offline_access"))
	require.False(t, Contains(got, "email"))
}
