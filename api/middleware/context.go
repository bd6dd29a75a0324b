package middleware

import (
	"context"
	"slices"

	"github.com/angelmondragon/easevote-backend/pkg/enums"
)

type principalKey struct{}

// Principal is the authenticated caller. Anonymous buyers have none.
type Principal struct {
	UserID string
	Role   enums.Role
}

// HasRole reports whether the principal carries one of roles.
func (p Principal) HasRole(roles ...enums.Role) bool {
	return p.Role != "" && slices.Contains(roles, p.Role)
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) string {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func RoleFromContext(ctx context.Context) enums.Role {
	p, _ := PrincipalFromContext(ctx)
	return p.Role
}

// WithUserID sets the caller id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	p, _ := PrincipalFromContext(ctx)
	p.UserID = userID
	return WithPrincipal(ctx, p)
}

// WithRole sets the caller role, keeping any user id already present.
func WithRole(ctx context.Context, role enums.Role) context.Context {
	p, _ := PrincipalFromContext(ctx)
	p.Role = role
	return WithPrincipal(ctx, p)
}
