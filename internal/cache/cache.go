package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Cache is a small string key-value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Nop never stores anything; every Get is a miss.
type Nop struct{}

var _ Cache = Nop{}

func (Nop) Get(context.Context, string) (string, error) { return "", ErrMiss }

func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }

func (Nop) Del(context.Context, ...string) (int64, error) { return 0, nil }

func (Nop) Ping(context.Context) error { return nil }

func (Nop) Close() error { return nil }
