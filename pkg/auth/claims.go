package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Name   string
	Phone  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by clients. UserID is
// the identity provider's subject and is opaque to the storefront.
type AccessTokenClaims struct {
	UserID string         `json:"user_id"`
	Email  string         `json:"email"`
	Name   string         `json:"name,omitempty"`
	Phone  string         `json:"phone,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass. jwt calls it during parsing;
// minting calls it directly. A missing role is read as the least privileged.
func (c *AccessTokenClaims) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		c.UserID = c.Subject
	}
	if strings.TrimSpace(c.UserID) == "" {
		return ErrMissingActor
	}
	if c.Role != "" && !c.Role.IsValid() {
		return fmt.Errorf("auth: invalid user role %q", c.Role)
	}
	return nil
}
