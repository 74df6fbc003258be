package guestcart

import (
	"context"
	"encoding/json"
	"time"

	"storefront-cart/internal/models"
	"storefront-cart/internal/util"
	"storefront-cart/internal/validator"

	"go.uber.org/zap"
)

// DefaultKey is the storage key of the guest cart
const DefaultKey = "guest_cart"

// Store manages one guest cart persisted as JSON under a single key.
// Every line goes through the validator before it is kept.
type Store struct {
	kv     KeyValueStore
	key    string
	logger *zap.Logger
	now    func() time.Time
}

// NewStore creates a guest cart store over kv
func NewStore(kv KeyValueStore, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		kv:     kv,
		key:    key,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// Key returns the storage key of this cart
func (s *Store) Key() string {
	return s.key
}

// Load reads the guest cart for display. It never fails: a read error yields
// an empty cart that is not persisted.
func (s *Store) Load(ctx context.Context) *models.Cart {
	cart, err := s.LoadForUpdate(ctx)
	if err != nil {
		s.logger.Error("Failed to read guest cart", zap.String("key", s.key), zap.Error(err))
		return models.EmptyCart()
	}
	return cart
}

// LoadForUpdate reads the guest cart a mutation builds on. A failed read is
// returned as STORAGE_FAILURE so nothing is written over data never read.
// Missing or undecodable data yields an empty cart, which is persisted; lines
// that fail validation are dropped, and any rewrite of the stored lines is
// saved back.
func (s *Store) LoadForUpdate(ctx context.Context) (*models.Cart, error) {
	payload, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, models.WrapCartError(models.CodeStorageFailure, "failed to read guest cart", err)
	}
	if !ok || payload == "" {
		cart := models.EmptyCart()
		s.Save(ctx, cart)
		return cart, nil
	}

	raws, ok := validator.DecodeLines([]byte(payload))
	if !ok {
		s.logger.Warn("Resetting malformed guest cart",
			zap.String("key", s.key),
			zap.String("code", models.CodeMalformedPersistedData))
		util.CartLinesPurged.WithLabelValues("malformed_cart").Inc()
		cart := models.EmptyCart()
		s.Save(ctx, cart)
		return cart, nil
	}

	cart := &models.Cart{Products: validator.NormalizeLines(raws)}
	if dropped := len(raws) - len(cart.Products); dropped > 0 {
		s.logger.Info("Dropped or merged guest cart lines",
			zap.String("key", s.key),
			zap.Int("dropped", dropped))
		util.CartLinesPurged.WithLabelValues("normalized").Add(float64(dropped))
	}

	// normalization may assign ids or clamp quantities; the stored copy must
	// match what callers were handed
	if data, err := encode(cart); err == nil && string(data) != payload {
		s.Save(ctx, cart)
	}
	return cart, nil
}

func encode(cart *models.Cart) ([]byte, error) {
	if cart.Products == nil {
		cart.Products = []models.CartLine{}
	}
	return json.Marshal(models.GuestCartDocument{Cart: *cart})
}

// Save persists the cart. Failures are logged, not returned: the in-memory
// cart stays authoritative for the session.
func (s *Store) Save(ctx context.Context, cart *models.Cart) {
	data, err := encode(cart)
	if err != nil {
		s.logger.Error("Failed to encode guest cart", zap.String("key", s.key), zap.Error(err))
		return
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.logger.Error("Failed to persist guest cart", zap.String("key", s.key), zap.Error(err))
	}
}

// AddLine adds quantity of a product to the cart. A line with the same product
// and SKU absorbs the quantity; otherwise a new line is appended. Validation
// errors leave the stored cart untouched.
func (s *Store) AddLine(ctx context.Context, product models.Product, quantity int, requestedSku string) (*models.Cart, error) {
	productID := product.Identifier()
	if productID == "" {
		return nil, models.ErrInvalidProduct
	}
	if quantity < 1 {
		return nil, models.ErrInvalidQuantity
	}

	lineSku, err := validator.ResolveLineSku(&product, requestedSku)
	if err != nil {
		return nil, err
	}

	cart, err := s.LoadForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	key := validator.LineKey(productID, lineSku)

	for i := range cart.Products {
		line := &cart.Products[i]
		if validator.LineKey(line.ProductID, line.SKU) != key {
			continue
		}
		bounded, err := validator.BoundQuantity(int(line.Quantity)+quantity, &product, lineSku)
		if err != nil {
			return nil, err
		}
		line.Quantity = models.Quantity(bounded)
		s.Save(ctx, cart)
		return cart, nil
	}

	bounded, err := validator.BoundQuantity(quantity, &product, lineSku)
	if err != nil {
		return nil, err
	}

	cart.Products = append(cart.Products, models.CartLine{
		ID:           validator.NewLineID(s.now(), productID, lineSku),
		ProductID:    productID,
		Product:      product.Snapshot(),
		Quantity:     models.Quantity(bounded),
		SKU:          lineSku,
		VariantSKU:   lineSku,
		VariantCount: product.VariantCount(),
	})
	s.Save(ctx, cart)
	return cart, nil
}

// UpdateLineQuantity sets the quantity of a line, bounded by its stock
func (s *Store) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, models.ErrInvalidQuantity
	}

	cart, err := s.LoadForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	for i := range cart.Products {
		line := &cart.Products[i]
		if line.ID != lineID {
			continue
		}
		bounded, err := validator.BoundQuantity(quantity, line.Product, line.SKU)
		if err != nil {
			return nil, err
		}
		line.Quantity = models.Quantity(bounded)
		s.Save(ctx, cart)
		return cart, nil
	}
	return nil, models.ErrLineNotFound
}

// RemoveLine drops the line with lineID; removing an absent line is a no-op
func (s *Store) RemoveLine(ctx context.Context, lineID string) (*models.Cart, error) {
	cart, err := s.LoadForUpdate(ctx)
	if err != nil {
		return nil, err
	}
	kept := cart.Products[:0]
	for _, line := range cart.Products {
		if line.ID != lineID {
			kept = append(kept, line)
		}
	}
	cart.Products = kept
	s.Save(ctx, cart)
	return cart, nil
}

// Clear replaces the cart with an empty one
func (s *Store) Clear(ctx context.Context) *models.Cart {
	cart := models.EmptyCart()
	s.Save(ctx, cart)
	return cart
}

// Purge deletes the stored cart entirely, so the next guest session starts
// from nothing rather than from an empty leftover.
func (s *Store) Purge(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}
