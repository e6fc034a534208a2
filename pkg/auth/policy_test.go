package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aidigitalagency/storefront-backend/pkg/enums"
)

func TestAdminPolicy(t *testing.T) {
	open := NewAdminPolicy(nil)
	restricted := NewAdminPolicy([]string{" Ops@Example.com ", ""})

	admin := &AccessTokenClaims{UserID: "u1", Email: "ops@example.com", Role: enums.UserRoleAdmin}
	outsider := &AccessTokenClaims{UserID: "u2", Email: "intern@example.com", Role: enums.UserRoleAdmin}
	customer := &AccessTokenClaims{UserID: "u3", Email: "ops@example.com", Role: enums.UserRoleCustomer}

	assert.True(t, open.IsAdmin(admin))
	assert.True(t, open.IsAdmin(outsider))
	assert.False(t, open.IsAdmin(customer))
	assert.False(t, open.IsAdmin(nil))

	assert.True(t, restricted.IsAdmin(admin))
	assert.False(t, restricted.IsAdmin(outsider))
	assert.False(t, restricted.IsAdmin(customer))

	var nilPolicy *AdminPolicy
	assert.True(t, nilPolicy.IsAdmin(admin))
}
