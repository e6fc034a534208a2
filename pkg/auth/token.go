package auth

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
)

// clockSkew is tolerated on exp, nbf and iat between the issuer and us.
const clockSkew = 30 * time.Second

var (
	ErrSigningKey   = errors.New("auth: jwt secret is required")
	ErrMissingActor = errors.New("auth: token has no subject")
)

var signingMethod = jwt.SigningMethodHS256

// MintAccessToken signs an HS256 token for payload, valid for the configured
// number of minutes from now. A blank JTI gets a random one.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrSigningKey
	case cfg.Issuer == "":
		return "", errors.New("auth: jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("auth: jwt expiration must be positive")
	case !payload.Role.IsValid():
		return "", fmt.Errorf("auth: invalid user role %q", payload.Role)
	}

	claims := AccessTokenClaims{
		UserID: strings.TrimSpace(payload.UserID),
		Email:  strings.ToLower(strings.TrimSpace(payload.Email)),
		Name:   payload.Name,
		Phone:  payload.Phone,
		Role:   payload.Role,
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		ID:        cmp.Or(strings.TrimSpace(payload.JTI), uuid.NewString()),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the storefront
// claims. Tokens from issuers that only set sub get UserID filled from it.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, ErrSigningKey
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	claims := &AccessTokenClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
