package middleware

import "context"

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxEmail  contextKey = "actor_email"
	ctxName   contextKey = "actor_name"
	ctxPhone  contextKey = "actor_phone"
)

// Identity is the caller profile carried by the access token.
type Identity struct {
	UserID string
	Email  string
	Name   string
	Phone  string
	Role   string
}

func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

// IdentityFromContext returns the authenticated caller, or false when the
// request did not pass through Auth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id := Identity{
		UserID: stringValue(ctx, ctxUserID),
		Email:  stringValue(ctx, ctxEmail),
		Name:   stringValue(ctx, ctxName),
		Phone:  stringValue(ctx, ctxPhone),
		Role:   stringValue(ctx, ctxRole),
	}
	return id, id.UserID != ""
}

// WithIdentity injects the caller profile into the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	ctx = context.WithValue(ctx, ctxEmail, id.Email)
	ctx = context.WithValue(ctx, ctxName, id.Name)
	return context.WithValue(ctx, ctxPhone, id.Phone)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
