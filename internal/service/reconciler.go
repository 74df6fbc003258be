package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-cart/internal/guestcart"
	"storefront-cart/internal/models"
	"storefront-cart/internal/util"
	"storefront-cart/internal/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNotAuthenticated is returned when a reconciliation is asked for without a signed-in session
var ErrNotAuthenticated = errors.New("reconciliation requires a signed-in session")

// ReconcileResult reports how many guest lines made it into the account cart
type ReconcileResult struct {
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
}

// Reconciler replays a guest cart into the account cart on login
type Reconciler struct {
	kv          guestcart.KeyValueStore
	guestKey    string
	remote      RemoteCart
	cache       CartCache
	locker      Locker
	publisher   EventPublisher
	concurrency int
	logger      *zap.Logger

	mu       sync.Mutex
	inflight map[string]*inflightPass
}

type inflightPass struct {
	cancel context.CancelFunc
}

// NewReconciler creates a reconciler replaying at most concurrency lines at once
func NewReconciler(
	kv guestcart.KeyValueStore,
	guestKey string,
	remote RemoteCart,
	cache CartCache,
	locker Locker,
	publisher EventPublisher,
	concurrency int,
) *Reconciler {
	if cache == nil {
		cache = NopCache{}
	}
	if locker == nil {
		locker = NewMemoryLocker()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		kv:          kv,
		guestKey:    guestKey,
		remote:      remote,
		cache:       cache,
		locker:      locker,
		publisher:   publisher,
		concurrency: concurrency,
		logger:      util.GetLogger(),
		inflight:    make(map[string]*inflightPass),
	}
}

// Reconcile moves every guest line into the account cart. Lines are replayed
// concurrently and independently; the ones that fail stay in the guest cart.
// When all succeed the guest cart is deleted outright.
func (r *Reconciler) Reconcile(ctx context.Context, sess Session) (*ReconcileResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile", "user_id", sess.UserID, "guest_id", sess.GuestID)
	defer span.End()

	if !sess.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	ctx, done := r.register(ctx, sess.UserID)
	defer done()

	guestOwner := GuestOwnerKey(sess.GuestID)
	unlock, err := r.locker.Lock(ctx, guestOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to lock guest cart: %w", err)
	}
	defer unlock()

	start := time.Now()
	defer func() {
		util.CartReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	store := guestcart.NewStore(r.kv, guestcart.KeyFor(r.guestKey, sess.GuestID))
	cart, err := store.LoadForUpdate(ctx)
	if err != nil {
		util.CartReconciliationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("failed to load guest cart: %w", err)
	}
	if len(cart.Products) == 0 {
		util.CartReconciliationsTotal.WithLabelValues("empty").Inc()
		return &ReconcileResult{}, nil
	}

	failures := r.replay(ctx, sess, cart.Products)

	failed := make([]models.CartLine, 0)
	failedSkus := make([]string, 0)
	for i, err := range failures {
		if err == nil {
			continue
		}
		line := cart.Products[i]
		failed = append(failed, line)
		failedSkus = append(failedSkus, line.SKU)
		r.logger.Warn("Guest line not merged",
			zap.String("user_id", sess.UserID),
			zap.String("line_id", line.ID),
			zap.String("product_id", line.ProductID),
			zap.String("sku", line.SKU),
			zap.String("code", models.CodeOf(err)),
			zap.Error(err))
	}

	result := &ReconcileResult{
		SuccessCount: len(cart.Products) - len(failed),
		FailedCount:  len(failed),
	}
	util.CartReconciledLinesTotal.WithLabelValues("success").Add(float64(result.SuccessCount))
	util.CartReconciledLinesTotal.WithLabelValues("failed").Add(float64(result.FailedCount))

	// a logout may have cancelled ctx; leftover lines are written regardless
	persistCtx := context.WithoutCancel(ctx)
	if result.FailedCount == 0 {
		if err := store.Purge(persistCtx); err != nil {
			r.logger.Error("Failed to purge guest cart", zap.String("key", store.Key()), zap.Error(err))
		}
		util.CartReconciliationsTotal.WithLabelValues("completed").Inc()
	} else {
		store.Save(persistCtx, &models.Cart{Products: failed})
		util.CartReconciliationsTotal.WithLabelValues("partial").Inc()
	}

	if err := r.cache.InvalidateCartViews(persistCtx, guestOwner, UserOwnerKey(sess.UserID)); err != nil {
		r.logger.Warn("Cart view cache invalidation failed", zap.Error(err))
	}

	r.publish(persistCtx, sess, result, failedSkus)

	r.logger.Info("Guest cart reconciled",
		zap.String("user_id", sess.UserID),
		zap.String("guest_id", sess.GuestID),
		zap.Int("success_count", result.SuccessCount),
		zap.Int("failed_count", result.FailedCount))
	return result, nil
}

// replay adds every line to the account cart and returns one error slot per
// line. A failing line never stops the others.
func (r *Reconciler) replay(ctx context.Context, sess Session, lines []models.CartLine) []error {
	failures := make([]error, len(lines))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i := range lines {
		g.Go(func() error {
			failures[i] = r.replayLine(ctx, sess, lines[i])
			return nil
		})
	}
	_ = g.Wait()

	return failures
}

func (r *Reconciler) replayLine(ctx context.Context, sess Session, line models.CartLine) error {
	if err := ctx.Err(); err != nil {
		return models.WrapCartError(models.CodeRemoteFailure, "reconciliation cancelled", err)
	}
	if line.Product == nil {
		return models.ErrInvalidProduct
	}

	lineSku, err := validator.ResolveLineSku(line.Product, line.SKU)
	if err != nil {
		return err
	}

	_, err = r.remote.AddLine(ctx, sess.Token, *line.Product, int(line.Quantity), lineSku)
	return err
}

func (r *Reconciler) publish(ctx context.Context, sess Session, result *ReconcileResult, failedSkus []string) {
	if r.publisher == nil {
		return
	}
	event := &models.CartReconciledEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeCartReconciled,
			Timestamp: time.Now(),
		},
		UserID:       sess.UserID,
		GuestID:      sess.GuestID,
		SuccessCount: result.SuccessCount,
		FailedCount:  result.FailedCount,
		FailedSkus:   failedSkus,
	}
	if err := r.publisher.PublishCartReconciled(ctx, event); err != nil {
		r.logger.Error("Failed to publish CartReconciled event", zap.Error(err))
	}
}

// register makes the pass cancellable by Cancel(userID)
func (r *Reconciler) register(ctx context.Context, userID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	pass := &inflightPass{cancel: cancel}

	r.mu.Lock()
	r.inflight[userID] = pass
	r.mu.Unlock()

	return ctx, func() {
		cancel()
		r.mu.Lock()
		if r.inflight[userID] == pass {
			delete(r.inflight, userID)
		}
		r.mu.Unlock()
	}
}

// Cancel stops the in-flight reconciliation of userID, if any. Lines not yet
// replayed are kept in the guest cart.
func (r *Reconciler) Cancel(userID string) bool {
	r.mu.Lock()
	pass, ok := r.inflight[userID]
	delete(r.inflight, userID)
	r.mu.Unlock()

	if ok {
		pass.cancel()
		r.logger.Info("Cancelled in-flight reconciliation", zap.String("user_id", userID))
	}
	return ok
}
