package worker

import (
	"context"
	"fmt"

	"storefront-cart/internal/broker"
	"storefront-cart/internal/models"
	"storefront-cart/internal/service"
	"storefront-cart/internal/store"
	"storefront-cart/internal/util"

	"go.uber.org/zap"
)

// RunRecorder persists reconciliation outcomes
type RunRecorder interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	RecordReconciliation(ctx context.Context, run *models.ReconciliationRun, eventType string) (bool, error)
}

// CartEventWorker consumes cart and order events: it records every
// reconciliation and drops cached cart views that the event made stale.
type CartEventWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	recorder     RunRecorder
	cache        service.CartCache
	logger       *zap.Logger
}

// NewCartEventWorker creates a new cart event worker
func NewCartEventWorker(
	consumer *broker.Consumer,
	recorder RunRecorder,
	cache service.CartCache,
) *CartEventWorker {
	if cache == nil {
		cache = service.NopCache{}
	}

	w := &CartEventWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		recorder:     recorder,
		cache:        cache,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnCartReconciled(w.HandleCartReconciled)
	w.eventHandler.OnOrderConfirmed(w.HandleOrderConfirmed)

	return w
}

// Start starts the worker
func (w *CartEventWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting cart event worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *CartEventWorker) Stop() error {
	w.logger.Info("Stopping cart event worker")
	return w.consumer.Close()
}

// HandleCartReconciled records the run and invalidates the account cart view
func (w *CartEventWorker) HandleCartReconciled(ctx context.Context, event *models.CartReconciledEvent) error {
	ctx, span := util.StartSpan(ctx, "CartEventWorker.HandleCartReconciled",
		"event_id", event.EventID, "user_id", event.UserID)
	defer span.End()

	processed, err := w.recorder.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	run := &models.ReconciliationRun{
		EventID:      event.EventID,
		UserID:       event.UserID,
		GuestID:      event.GuestID,
		SuccessCount: event.SuccessCount,
		FailedCount:  event.FailedCount,
		Status:       store.ReconciliationStatus(event.SuccessCount, event.FailedCount),
	}

	recorded, err := w.recorder.RecordReconciliation(ctx, run, event.EventType)
	if err != nil {
		return fmt.Errorf("failed to record reconciliation: %w", err)
	}
	if !recorded {
		// a concurrent delivery recorded it between the check and the insert
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	w.invalidate(ctx, service.UserOwnerKey(event.UserID), service.GuestOwnerKey(event.GuestID))

	w.logger.Info("Recorded reconciliation",
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID),
		zap.String("status", run.Status))
	return nil
}

// HandleOrderConfirmed drops the cached cart of the buyer, whose account cart
// was consumed by the order
func (w *CartEventWorker) HandleOrderConfirmed(ctx context.Context, event *models.OrderConfirmedEvent) error {
	if event.UserID == "" {
		return nil
	}
	w.invalidate(ctx, service.UserOwnerKey(event.UserID))
	w.logger.Info("Invalidated cart view after order",
		zap.String("order_id", event.OrderID),
		zap.String("user_id", event.UserID))
	return nil
}

func (w *CartEventWorker) invalidate(ctx context.Context, ownerKeys ...string) {
	if err := w.cache.InvalidateCartViews(ctx, ownerKeys...); err != nil {
		w.logger.Warn("Cart view cache invalidation failed", zap.Strings("owners", ownerKeys), zap.Error(err))
	}
}
