package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aidigitalagency/storefront-backend/pkg/config"
	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

func testJWTConfig(minutes int) config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "storefront",
		ExpirationMinutes: minutes,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig(30)
	now := time.Now().UTC()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID: "user-42",
		Email:  " Asha@Example.com ",
		Name:   "Asha",
		Role:   enums.UserRoleCustomer,
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.UserID)
	require.Equal(t, "user-42", claims.Subject)
	require.Equal(t, "asha@example.com", claims.Email)
	require.Equal(t, enums.UserRoleCustomer, claims.Role)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	require.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig(10)
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "u1", Role: enums.UserRoleAdmin})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token+"x")
	require.Error(t, err)
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig(10)
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "u1", Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.Error(t, err)
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig(15)
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{UserID: "u1", Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "expired"), "unexpected error: %v", err)
}

func TestMintAccessTokenValidatesPayload(t *testing.T) {
	cfg := testJWTConfig(5)

	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: "u1", Role: ""})
	require.Error(t, err)

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: " ", Role: enums.UserRoleCustomer})
	require.Error(t, err)

	_, err = MintAccessToken(config.JWTConfig{Issuer: "x", ExpirationMinutes: 1}, time.Now(), AccessTokenPayload{UserID: "u1", Role: enums.UserRoleCustomer})
	require.Error(t, err)
}

func TestParseAccessTokenFallsBackToSubject(t *testing.T) {
	cfg := testJWTConfig(10)
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  "idp|123",
		"iss":  cfg.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Minute).Unix(),
		"role": string(enums.UserRoleCustomer),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	parsed, err := ParseAccessToken(cfg, raw)
	require.NoError(t, err)
	require.Equal(t, "idp|123", parsed.UserID)
}

func TestParseAccessTokenRejectsUnsafeTokens(t *testing.T) {
	cfg := testJWTConfig(10)
	now := time.Now()
	sign := func(method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
		raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return raw
	}

	noExpiry := sign(jwt.SigningMethodHS256, []byte(cfg.Secret), jwt.MapClaims{"sub": "u1", "iss": cfg.Issuer})
	_, err := ParseAccessToken(cfg, noExpiry)
	require.ErrorIs(t, err, jwt.ErrTokenRequiredClaimMissing)

	noSubject := sign(jwt.SigningMethodHS256, []byte(cfg.Secret), jwt.MapClaims{"iss": cfg.Issuer, "exp": now.Add(time.Minute).Unix()})
	_, err = ParseAccessToken(cfg, noSubject)
	require.ErrorIs(t, err, ErrMissingActor)

	badRole := sign(jwt.SigningMethodHS256, []byte(cfg.Secret), jwt.MapClaims{"sub": "u1", "iss": cfg.Issuer, "exp": now.Add(time.Minute).Unix(), "role": "root"})
	_, err = ParseAccessToken(cfg, badRole)
	require.Error(t, err)

	otherAlg := sign(jwt.SigningMethodHS512, []byte(cfg.Secret), jwt.MapClaims{"sub": "u1", "iss": cfg.Issuer, "exp": now.Add(time.Minute).Unix()})
	_, err = ParseAccessToken(cfg, otherAlg)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)

	_, err = ParseAccessToken(config.JWTConfig{Issuer: cfg.Issuer}, noExpiry)
	require.ErrorIs(t, err, ErrSigningKey)
}

func TestParseAccessTokenAllowsClockSkew(t *testing.T) {
	cfg := testJWTConfig(1)
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{UserID: "u1", Role: enums.UserRoleCustomer})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)
}
