package handler

import "context"

type memberIDKey struct{}
type roleKey struct{}

// WithMember stores the acting member's id and role in the context.
func WithMember(ctx context.Context, memberID int64, role string) context.Context {
	ctx = context.WithValue(ctx, memberIDKey{}, memberID)
	return context.WithValue(ctx, roleKey{}, role)
}

// MemberIDFromContext retrieves the acting member's id, or 0 when
// unauthenticated.
func MemberIDFromContext(ctx context.Context) int64 {
	id, _ := ctx.Value(memberIDKey{}).(int64)
	return id
}

// RoleFromContext retrieves the acting member's role.
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
