package service

import (
	"context"
	"sync"

	"storefront-cart/internal/models"
)

type addCall struct {
	productID string
	quantity  int
	sku       string
}

type fakeRemote struct {
	mu      sync.Mutex
	lines   []models.CartLine
	adds    []addCall
	gets    int
	failSku map[string]error
	block   chan struct{}
	started chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failSku: map[string]error{}}
}

func (f *fakeRemote) GetCart(ctx context.Context, token string) ([]models.CartLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return append([]models.CartLine(nil), f.lines...), nil
}

func (f *fakeRemote) AddLine(ctx context.Context, token string, product models.Product, quantity int, lineSku string) ([]models.CartLine, error) {
	if f.block != nil {
		if f.started != nil {
			select {
			case f.started <- struct{}{}:
			default:
			}
		}
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, models.WrapCartError(models.CodeRemoteFailure, "request cancelled", ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, addCall{productID: product.Identifier(), quantity: quantity, sku: lineSku})
	if err, ok := f.failSku[lineSku]; ok {
		return nil, err
	}
	f.lines = append(f.lines, models.CartLine{
		ID:        "srv-" + product.Identifier() + "-" + lineSku,
		ProductID: product.Identifier(),
		Product:   product.Snapshot(),
		Quantity:  models.Quantity(quantity),
		SKU:       lineSku,
	})
	return append([]models.CartLine(nil), f.lines...), nil
}

func (f *fakeRemote) UpdateLine(ctx context.Context, token, itemID string, quantity int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.lines {
		if f.lines[i].ID == itemID {
			f.lines[i].Quantity = models.Quantity(quantity)
			return nil
		}
	}
	return models.ErrLineNotFound
}

func (f *fakeRemote) RemoveLine(ctx context.Context, token, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.lines[:0]
	for _, line := range f.lines {
		if line.ID != itemID {
			kept = append(kept, line)
		}
	}
	f.lines = kept
	return nil
}

func (f *fakeRemote) ClearCart(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = nil
	return nil
}

func (f *fakeRemote) addCalls() []addCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]addCall(nil), f.adds...)
}

type memoryCache struct {
	mu          sync.Mutex
	views       map[string][]byte
	invalidated []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{views: map[string][]byte{}}
}

func (c *memoryCache) GetCartView(ctx context.Context, ownerKey string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	view, ok := c.views[ownerKey]
	return view, ok, nil
}

func (c *memoryCache) SetCartView(ctx context.Context, ownerKey string, view []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.views[ownerKey] = view
	return nil
}

func (c *memoryCache) InvalidateCartViews(ctx context.Context, ownerKeys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range ownerKeys {
		delete(c.views, key)
	}
	c.invalidated = append(c.invalidated, ownerKeys...)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.CartReconciledEvent
}

func (p *recordingPublisher) PublishCartReconciled(ctx context.Context, event *models.CartReconciledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func intPtr(n int) *int { return &n }

func shirt() models.Product {
	return models.Product{
		ID:           "p1",
		Name:         "Shirt",
		DefaultPrice: models.NewPrice("10"),
		Variants: []models.Variant{
			{ID: "v1", SKU: "S-M", Stock: intPtr(5)},
			{ID: "v2", SKU: "S-L", Stock: intPtr(5), Price: &models.Price{}},
		},
	}
}

func poster() models.Product {
	return models.Product{ID: "p3", Name: "Poster", Variants: []models.Variant{{ID: "a"}, {ID: "b"}}}
}

func mug() models.Product {
	discount := models.NewPrice("3.25")
	return models.Product{
		ID:            "p2",
		Name:          "Mug",
		DefaultPrice:  models.NewPrice("4"),
		DiscountPrice: &discount,
		Variants:      []models.Variant{{ID: "v9", SKU: "ABC123"}},
	}
}
