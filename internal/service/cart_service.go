package service

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront-cart/internal/guestcart"
	"storefront-cart/internal/models"
	"storefront-cart/internal/util"
	"storefront-cart/internal/validator"

	"go.uber.org/zap"
)

// CartView is what callers get back from every cart operation
type CartView struct {
	Cart   models.Cart   `json:"cart"`
	Totals models.Totals `json:"totals"`
}

func newCartView(lines []models.CartLine) *CartView {
	if lines == nil {
		lines = []models.CartLine{}
	}
	cart := models.Cart{Products: lines}
	return &CartView{Cart: cart, Totals: ComputeTotals(&cart)}
}

// CartService is the single cart entry point. Guests are served from the
// guest store, signed-in shoppers from the marketplace API; both go through
// the same SKU rules first.
type CartService struct {
	kv       guestcart.KeyValueStore
	guestKey string
	remote   RemoteCart
	cache    CartCache
	locker   Locker
	logger   *zap.Logger
}

// NewCartService creates the cart facade
func NewCartService(
	kv guestcart.KeyValueStore,
	guestKey string,
	remote RemoteCart,
	cache CartCache,
	locker Locker,
) *CartService {
	if cache == nil {
		cache = NopCache{}
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	return &CartService{
		kv:       kv,
		guestKey: guestKey,
		remote:   remote,
		cache:    cache,
		locker:   locker,
		logger:   util.GetLogger(),
	}
}

func (s *CartService) guestStore(sess Session) *guestcart.Store {
	return guestcart.NewStore(s.kv, guestcart.KeyFor(s.guestKey, sess.GuestID))
}

// GetCart returns the caller's normalized cart and its totals
func (s *CartService) GetCart(ctx context.Context, sess Session) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetCart", "owner", sess.OwnerKey())
	defer span.End()

	if view, ok := s.cachedView(ctx, sess.OwnerKey()); ok {
		return view, nil
	}

	var lines []models.CartLine
	if sess.Authenticated() {
		remoteLines, err := s.remote.GetCart(ctx, sess.Token)
		if err != nil {
			return nil, err
		}
		lines = remoteLines
	} else {
		lines = s.guestStore(sess).Load(ctx).Products
	}

	view := newCartView(lines)
	s.storeView(ctx, sess.OwnerKey(), view)
	return view, nil
}

// AddToCart adds quantity of product, optionally as the variant with the
// given SKU. Multi-variant products without a resolvable SKU are rejected
// with SKU_REQUIRED before anything is written.
func (s *CartService) AddToCart(ctx context.Context, sess Session, product models.Product, quantity int, requestedSku string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddToCart",
		"owner", sess.OwnerKey(), "product_id", product.Identifier())
	defer span.End()

	lineSku, err := s.prevalidateAdd(product, quantity, requestedSku)
	if err != nil {
		return nil, s.reject(err)
	}

	unlock, err := s.locker.Lock(ctx, sess.OwnerKey())
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	var lines []models.CartLine
	mode := "guest"
	if sess.Authenticated() {
		mode = "account"
		bounded, err := validator.BoundQuantity(quantity, &product, lineSku)
		if err != nil {
			return nil, s.reject(err)
		}
		lines, err = s.remote.AddLine(ctx, sess.Token, product, bounded, lineSku)
		if err != nil {
			return nil, s.reject(err)
		}
	} else {
		cart, err := s.guestStore(sess).AddLine(ctx, product, quantity, lineSku)
		if err != nil {
			return nil, s.reject(err)
		}
		lines = cart.Products
	}

	util.CartLinesAddedTotal.WithLabelValues(mode).Inc()
	s.logger.Info("Added to cart",
		zap.String("owner", sess.OwnerKey()),
		zap.String("product_id", product.Identifier()),
		zap.String("sku", lineSku),
		zap.Int("quantity", quantity))

	return s.refreshed(ctx, sess, lines)
}

func (s *CartService) prevalidateAdd(product models.Product, quantity int, requestedSku string) (string, error) {
	if product.Identifier() == "" {
		return "", models.ErrInvalidProduct
	}
	if quantity < 1 {
		return "", models.ErrInvalidQuantity
	}
	return validator.ResolveLineSku(&product, requestedSku)
}

// UpdateQuantity sets the quantity of one line
func (s *CartService) UpdateQuantity(ctx context.Context, sess Session, lineID string, quantity int) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity", "owner", sess.OwnerKey(), "line_id", lineID)
	defer span.End()

	if quantity < 1 {
		return nil, s.reject(models.ErrInvalidQuantity)
	}

	unlock, err := s.locker.Lock(ctx, sess.OwnerKey())
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	if sess.Authenticated() {
		if err := s.remote.UpdateLine(ctx, sess.Token, lineID, quantity); err != nil {
			return nil, s.reject(err)
		}
		return s.refetch(ctx, sess)
	}

	cart, err := s.guestStore(sess).UpdateLineQuantity(ctx, lineID, quantity)
	if err != nil {
		return nil, s.reject(err)
	}
	return s.refreshed(ctx, sess, cart.Products)
}

// RemoveLine deletes one line
func (s *CartService) RemoveLine(ctx context.Context, sess Session, lineID string) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveLine", "owner", sess.OwnerKey(), "line_id", lineID)
	defer span.End()

	unlock, err := s.locker.Lock(ctx, sess.OwnerKey())
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	if sess.Authenticated() {
		if err := s.remote.RemoveLine(ctx, sess.Token, lineID); err != nil {
			return nil, s.reject(err)
		}
		return s.refetch(ctx, sess)
	}

	cart, err := s.guestStore(sess).RemoveLine(ctx, lineID)
	if err != nil {
		return nil, s.reject(err)
	}
	return s.refreshed(ctx, sess, cart.Products)
}

// ClearCart empties the caller's cart
func (s *CartService) ClearCart(ctx context.Context, sess Session) (*CartView, error) {
	ctx, span := util.StartSpan(ctx, "CartService.ClearCart", "owner", sess.OwnerKey())
	defer span.End()

	unlock, err := s.locker.Lock(ctx, sess.OwnerKey())
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	if sess.Authenticated() {
		if err := s.remote.ClearCart(ctx, sess.Token); err != nil {
			return nil, s.reject(err)
		}
	} else {
		s.guestStore(sess).Clear(ctx)
	}
	return s.refreshed(ctx, sess, nil)
}

// refetch reloads an account cart after a mutation whose response carries no cart
func (s *CartService) refetch(ctx context.Context, sess Session) (*CartView, error) {
	s.invalidate(ctx, sess.OwnerKey())
	lines, err := s.remote.GetCart(ctx, sess.Token)
	if err != nil {
		return nil, err
	}
	return s.refreshed(ctx, sess, lines)
}

func (s *CartService) refreshed(ctx context.Context, sess Session, lines []models.CartLine) (*CartView, error) {
	view := newCartView(lines)
	s.storeView(ctx, sess.OwnerKey(), view)
	return view, nil
}

func (s *CartService) reject(err error) error {
	code := models.CodeOf(err)
	if code == "" {
		code = "internal"
	}
	util.CartRejectionsTotal.WithLabelValues(code).Inc()
	return err
}

func (s *CartService) cachedView(ctx context.Context, ownerKey string) (*CartView, bool) {
	data, ok, err := s.cache.GetCartView(ctx, ownerKey)
	if err != nil {
		s.logger.Warn("Cart view cache read failed", zap.String("owner", ownerKey), zap.Error(err))
		util.CartCacheLookupsTotal.WithLabelValues("error").Inc()
		return nil, false
	}
	if !ok {
		util.CartCacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}

	var view CartView
	if err := json.Unmarshal(data, &view); err != nil {
		util.CartCacheLookupsTotal.WithLabelValues("corrupt").Inc()
		s.invalidate(ctx, ownerKey)
		return nil, false
	}
	util.CartCacheLookupsTotal.WithLabelValues("hit").Inc()
	return &view, true
}

func (s *CartService) storeView(ctx context.Context, ownerKey string, view *CartView) {
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.Error("Failed to encode cart view", zap.String("owner", ownerKey), zap.Error(err))
		return
	}
	if err := s.cache.SetCartView(ctx, ownerKey, data); err != nil {
		s.logger.Warn("Cart view cache write failed", zap.String("owner", ownerKey), zap.Error(err))
	}
}

func (s *CartService) invalidate(ctx context.Context, ownerKeys ...string) {
	if err := s.cache.InvalidateCartViews(ctx, ownerKeys...); err != nil {
		s.logger.Warn("Cart view cache invalidation failed", zap.Strings("owners", ownerKeys), zap.Error(err))
	}
}
