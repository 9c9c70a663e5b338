// Package internal holds helpers shared by the packages of this module.
package internal

import (
	"context"
	"fmt"
)

// CtxKey is a context key bound to the type of the value stored under it, so lookups never need a type assertion
// at the call site. Keys with the same name but different types do not collide.
type CtxKey[T any] struct {
	name string
}

func NewCtxKey[T any](name string) CtxKey[T] {
	return CtxKey[T]{name: name}
}

func (k CtxKey[T]) String() string {
	return fmt.Sprintf("ctxkey[%T](%s)", *new(T), k.name)
}

// SetCtxKey returns a copy of ctx carrying value under key
func SetCtxKey[T any](ctx context.Context, key CtxKey[T], value T) context.Context {
	return context.WithValue(ctx, key, value)
}

// GetCtxKey reports the value stored under key, if any
func GetCtxKey[T any](ctx context.Context, key CtxKey[T]) (T, bool) {
	value, ok := ctx.Value(key).(T)
	return value, ok
}
