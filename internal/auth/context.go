package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

var ErrNoIdentity = errors.New("no authenticated identity in context")

// WithIdentity attaches the verified identity to the context.
func WithIdentity(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxKeyUserID, userID)
	ctx = context.WithValue(ctx, ctxKeyRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxKeyUserID).(string)
	if !ok || v == "" {
		return "", ErrNoIdentity
	}
	return v, nil
}

func Role(ctx context.Context) (string, error) {
	v, ok := ctx.Value(ctxKeyRole).(string)
	if !ok || v == "" {
		return "", ErrNoIdentity
	}
	return v, nil
}
