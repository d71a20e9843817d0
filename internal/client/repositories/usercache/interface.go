// Package usercache persists opaque identity records fetched from the
// backend so they survive restarts. Callers encrypt values themselves.
package usercache

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
