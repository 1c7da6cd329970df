package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Context keys for authentication data
type contextKey string

const (
	// ContextKeyCaller is the context key for the authenticated caller address
	ContextKeyCaller contextKey = "caller_address"
)

// WithCaller adds the authenticated caller address to the context
func WithCaller(ctx context.Context, addr common.Address) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, addr)
}

// CallerFromContext retrieves the authenticated caller address from the context
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	addr, ok := ctx.Value(ContextKeyCaller).(common.Address)
	return addr, ok
}
