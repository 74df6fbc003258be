package redisclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-cart/internal/util"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

const lockRetryInterval = 50 * time.Millisecond

// Options tunes how the client uses redis for carts
type Options struct {
	CacheTTL time.Duration
	LockTTL  time.Duration
}

// Client backs guest carts, cart view caching and cart locks with redis
type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
	opts          Options
	logger        *zap.Logger
}

// NewClient connects to redis and verifies the connection
func NewClient(addr, password string, db int, opts Options) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
		opts:          opts,
		logger:        util.GetLogger(),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns the value under key; a missing key is not an error
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores value under key without expiry
func (c *Client) Set(ctx context.Context, key, value string) error {
	return c.rdb.Set(ctx, key, value, 0).Err()
}

// Delete removes key
func (c *Client) Delete(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func cartViewKey(ownerKey string) string {
	return fmt.Sprintf("cart_view:%s", ownerKey)
}

// GetCartView returns the cached view of an owner's cart
func (c *Client) GetCartView(ctx context.Context, ownerKey string) ([]byte, bool, error) {
	if c.opts.CacheTTL <= 0 {
		return nil, false, nil
	}
	data, err := c.rdb.Get(ctx, cartViewKey(ownerKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// SetCartView caches an owner's cart view for the configured TTL
func (c *Client) SetCartView(ctx context.Context, ownerKey string, view []byte) error {
	if c.opts.CacheTTL <= 0 {
		return nil
	}
	return c.rdb.Set(ctx, cartViewKey(ownerKey), view, c.opts.CacheTTL).Err()
}

// InvalidateCartViews drops the cached views of the given owners
func (c *Client) InvalidateCartViews(ctx context.Context, ownerKeys ...string) error {
	if len(ownerKeys) == 0 {
		return nil
	}
	keys := make([]string, len(ownerKeys))
	for i, owner := range ownerKeys {
		keys[i] = cartViewKey(owner)
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Lock acquires the mutation lock of a cart, polling until ctx is done.
// While held the lock is extended every LockTTL/3, so a slow holder keeps it;
// it expires on its own after LockTTL if the holder dies.
func (c *Client) Lock(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("lock:cart:%s", key)
	token := uuid.New().String()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := c.rdb.SetNX(ctx, lockKey, token, c.opts.LockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
		}
		if acquired {
			stop := keepAlive(c.opts.LockTTL/3, func(ctx context.Context) (bool, error) {
				return c.extend(ctx, lockKey, token)
			}, c.logger.With(zap.String("lock", lockKey)))
			return func() {
				stop()
				c.release(lockKey, token)
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// release deletes the lock only if this holder still owns it
func (c *Client) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.releaseScript.Run(ctx, c.rdb, []string{lockKey}, token).Err(); err != nil {
		c.logger.Warn("Failed to release cart lock", zap.String("lock", lockKey), zap.Error(err))
	}
}

// extend pushes the lock expiry back to LockTTL if this holder still owns it
func (c *Client) extend(ctx context.Context, lockKey, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.LockTTL/3)
	defer cancel()

	n, err := c.extendScript.Run(ctx, c.rdb, []string{lockKey}, token, c.opts.LockTTL.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// keepAlive calls extend every interval until the returned stop func is
// called or extend reports the lock is no longer held. stop waits for the
// loop to exit, so no extension runs after it returns.
func keepAlive(interval time.Duration, extend func(ctx context.Context) (bool, error), logger *zap.Logger) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			held, err := extend(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn("Failed to extend cart lock", zap.Error(err))
				continue
			}
			if !held {
				logger.Error("Cart lock lost while held")
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
