package service

import (
	"context"
	"sync/atomic"
)

// Budget tracks the retries one logical call has left. Each reason may be
// used at most once.
type Budget struct {
	auth      atomic.Bool
	reconnect atomic.Bool
}

type budgetKey struct{}

// WithBudget attaches a fresh budget to ctx unless one is already present,
// and returns the budget in effect.
func WithBudget(ctx context.Context) (context.Context, *Budget) {
	if b, ok := ctx.Value(budgetKey{}).(*Budget); ok {
		return ctx, b
	}
	b := &Budget{}
	return context.WithValue(ctx, budgetKey{}, b), b
}

// BudgetFrom returns the budget of ctx, or a fresh detached one.
func BudgetFrom(ctx context.Context) *Budget {
	if b, ok := ctx.Value(budgetKey{}).(*Budget); ok {
		return b
	}
	return &Budget{}
}

// TakeAuth consumes the authentication retry. It reports false if it was
// already used.
func (b *Budget) TakeAuth() bool {
	return b.auth.CompareAndSwap(false, true)
}

// ReleaseAuth returns an authentication retry whose handshake never
// completed.
func (b *Budget) ReleaseAuth() {
	b.auth.Store(false)
}

// TakeReconnect consumes the reconnect retry
func (b *Budget) TakeReconnect() bool {
	return b.reconnect.CompareAndSwap(false, true)
}

// AuthUsed reports whether the authentication retry was consumed
func (b *Budget) AuthUsed() bool {
	return b.auth.Load()
}

// ReconnectUsed reports whether the reconnect retry was consumed
func (b *Budget) ReconnectUsed() bool {
	return b.reconnect.Load()
}
