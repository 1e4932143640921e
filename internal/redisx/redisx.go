// Package redisx holds the Redis-backed helpers: the logout token denylist,
// checkout idempotency keys and event dedup markers.
package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// auth:revoked:{jti} -> "1", expires with the token
	KeyRevokedToken = "auth:revoked:%s"

	// idem:checkout:{user_id}:{key} -> order id, or pendingMarker while placing
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// dedup:{consumer}:{id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLPending     = time.Minute
	TTLDedup       = 48 * time.Hour
)

const pendingMarker = "pending"

// ErrInProgress means another request holding the same idempotency key has
// not finished yet.
var ErrInProgress = errors.New("idempotent request in progress")

func New(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

type TokenDenylist struct{ rdb redis.Cmdable }

func NewTokenDenylist(rdb redis.Cmdable) *TokenDenylist {
	return &TokenDenylist{rdb: rdb}
}

// Revoke denies jti until its token would have expired anyway.
func (d *TokenDenylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := d.rdb.Set(ctx, fmt.Sprintf(KeyRevokedToken, jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (d *TokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, fmt.Sprintf(KeyRevokedToken, jti)).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

type Idempotency struct{ rdb redis.Cmdable }

func NewIdempotency(rdb redis.Cmdable) *Idempotency {
	return &Idempotency{rdb: rdb}
}

// Claim reserves key for userID. When the key was already used it returns the
// stored order id; when that request is still running it returns ErrInProgress.
// A successful claim returns ("", true, nil).
func (i *Idempotency) Claim(ctx context.Context, userID, key string) (string, bool, error) {
	k := fmt.Sprintf(KeyIdemCheckout, userID, key)
	ok, err := i.rdb.SetNX(ctx, k, pendingMarker, TTLPending).Result()
	if err != nil {
		return "", false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	val, err := i.rdb.Get(ctx, k).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Expired between SETNX and GET; the caller may simply retry.
		return "", false, ErrInProgress
	case err != nil:
		return "", false, fmt.Errorf("read idempotency key: %w", err)
	case val == pendingMarker:
		return "", false, ErrInProgress
	}
	return val, false, nil
}

// Complete records the order created under a claimed key.
func (i *Idempotency) Complete(ctx context.Context, userID, key, orderID string) error {
	k := fmt.Sprintf(KeyIdemCheckout, userID, key)
	if err := i.rdb.Set(ctx, k, orderID, TTLIdempotency).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

// Release frees a claimed key after a failed attempt so it can be retried.
func (i *Idempotency) Release(ctx context.Context, userID, key string) error {
	return i.rdb.Del(ctx, fmt.Sprintf(KeyIdemCheckout, userID, key)).Err()
}

type Dedup struct {
	rdb      redis.Cmdable
	consumer string
}

func NewDedup(rdb redis.Cmdable, consumer string) *Dedup {
	return &Dedup{rdb: rdb, consumer: consumer}
}

// Claim marks id as processed and reports whether this caller was first.
func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.consumer, id), "1", TTLDedup).Result()
	if err != nil {
		return false, fmt.Errorf("claim dedup key: %w", err)
	}
	return ok, nil
}

func (d *Dedup) Release(ctx context.Context, id string) error {
	return d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.consumer, id)).Err()
}
