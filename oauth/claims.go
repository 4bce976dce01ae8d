package oauth

import (
	"github.com/goliatone/go-identity/pkg/types"
	"github.com/goliatone/go-identity/scope"
)

// UserInfoClaims returns the OIDC standard claims of user visible under the
// granted scopes. sub is always present.
func UserInfoClaims(user *types.User, granted []string) map[string]any {
	if user == nil {
		return nil
	}
	claims := map[string]any{"sub": user.Subject()}
	if scope.Contains(granted, types.ScopeProfile) {
		p := user.Profile
		setClaim(claims, "name", firstNonEmpty(p.DisplayName, p.FullName()))
		setClaim(claims, "given_name", p.GivenName)
		setClaim(claims, "family_name", p.FamilyName)
		setClaim(claims, "preferred_username", user.Username)
		setClaim(claims, "picture", p.Picture)
		setClaim(claims, "locale", p.Locale)
		setClaim(claims, "zoneinfo", p.Zoneinfo)
		if !user.UpdatedAt.IsZero() {
			claims["updated_at"] = user.UpdatedAt.Unix()
		}
	}
	if scope.Contains(granted, types.ScopeEmail) && user.Email != "" {
		claims["email"] = user.Email
		claims["email_verified"] = user.EmailVerified
	}
	return claims
}

func setClaim(claims map[string]any, key, value string) {
	if value != "" {
		claims[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
