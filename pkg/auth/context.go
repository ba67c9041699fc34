package auth

import (
	"context"
	"errors"

	"github.com/Mindburn-Labs/covenant/pkg/authority"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches the acting principal to the context.
func WithPrincipal(ctx context.Context, p authority.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the acting principal from the context.
func GetPrincipal(ctx context.Context) (authority.Principal, error) {
	p, ok := ctx.Value(principalKey).(authority.Principal)
	if !ok || p == "" {
		return "", errors.New("no principal in context")
	}
	return p, nil
}
