package auth

import (
	"strings"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// AdminPolicy decides whether an identity may use admin operations. The token
// must carry the admin role; when an email allowlist is configured the
// identity's email must also be on it.
type AdminPolicy struct {
	emails map[string]struct{}
}

// NewAdminPolicy builds a policy from the configured allowlist.
func NewAdminPolicy(emails []string) *AdminPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		normalized := strings.ToLower(strings.TrimSpace(email))
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return &AdminPolicy{emails: set}
}

// IsAdmin reports whether the claims satisfy the policy.
func (p *AdminPolicy) IsAdmin(claims *AccessTokenClaims) bool {
	if claims == nil || claims.Role != enums.UserRoleAdmin {
		return false
	}
	if p == nil || len(p.emails) == 0 {
		return true
	}
	_, ok := p.emails[strings.ToLower(strings.TrimSpace(claims.Email))]
	return ok
}
