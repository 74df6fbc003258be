package service

import (
	"context"
	"sync"

	"storefront-cart/internal/models"
)

// RemoteCart is the marketplace cart API used for signed-in shoppers
type RemoteCart interface {
	GetCart(ctx context.Context, token string) ([]models.CartLine, error)
	AddLine(ctx context.Context, token string, product models.Product, quantity int, lineSku string) ([]models.CartLine, error)
	UpdateLine(ctx context.Context, token, itemID string, quantity int) error
	RemoveLine(ctx context.Context, token, itemID string) error
	ClearCart(ctx context.Context, token string) error
}

// CartCache keeps encoded cart views per owner key
type CartCache interface {
	GetCartView(ctx context.Context, ownerKey string) ([]byte, bool, error)
	SetCartView(ctx context.Context, ownerKey string, view []byte) error
	InvalidateCartViews(ctx context.Context, ownerKeys ...string) error
}

// Locker serializes mutations of one cart
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// EventPublisher publishes reconciliation outcomes
type EventPublisher interface {
	PublishCartReconciled(ctx context.Context, event *models.CartReconciledEvent) error
}

// NopCache is a CartCache that never holds anything
type NopCache struct{}

func (NopCache) GetCartView(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (NopCache) SetCartView(context.Context, string, []byte) error { return nil }
func (NopCache) InvalidateCartViews(context.Context, ...string) error { return nil }

// MemoryLocker is an in-process Locker keyed by cart
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done
func (l *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		held, busy := l.locks[key]
		if !busy {
			released := make(chan struct{})
			l.locks[key] = released
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.locks, key)
					l.mu.Unlock()
					close(released)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
