package auth

import (
	"context"

	"tranche-vault/internal/access"
)

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyCaps    contextKey = "auth.capabilities"
)

// WithIdentity stores auth identity details in context.
func WithIdentity(ctx context.Context, role Role, subject string, extra ...access.Capability) context.Context {
	ctx = context.WithValue(ctx, contextKeyRole, role)
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	ctx = context.WithValue(ctx, contextKeyCaps, append(role.Capabilities(), extra...))
	return ctx
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeySubject)
	if subject, ok := value.(string); ok {
		return subject
	}
	return ""
}

// CallerFromContext builds the capability token for the authenticated subject.
// An unauthenticated context yields a caller with no address and no capabilities.
func CallerFromContext(ctx context.Context) access.Caller {
	if ctx == nil {
		return access.Caller{}
	}
	caps, _ := ctx.Value(contextKeyCaps).([]access.Capability)
	return access.NewCaller(SubjectFromContext(ctx), caps...)
}
