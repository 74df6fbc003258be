package store

import (
	"context"
	"fmt"

	"storefront-cart/internal/models"
)

// RecordReconciliation stores one reconciliation outcome and marks its event
// processed, in one transaction. Replaying the same event is a no-op.
func (s *Store) RecordReconciliation(ctx context.Context, run *models.ReconciliationRun, eventType string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		run.EventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	query := `
		INSERT INTO reconciliation_runs (event_id, user_id, guest_id, success_count, failed_count, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	if err := tx.GetContext(ctx, run, query,
		run.EventID, run.UserID, run.GuestID, run.SuccessCount, run.FailedCount, run.Status); err != nil {
		return false, fmt.Errorf("failed to insert reconciliation run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListReconciliations returns a user's most recent reconciliation runs
func (s *Store) ListReconciliations(ctx context.Context, userID string, limit int) ([]models.ReconciliationRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []models.ReconciliationRun{}
	err := s.db.SelectContext(ctx, &runs,
		"SELECT * FROM reconciliation_runs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2",
		userID, limit)
	return runs, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// ReconciliationStatus classifies a run by its counts
func ReconciliationStatus(successCount, failedCount int) string {
	switch {
	case successCount == 0 && failedCount == 0:
		return models.ReconciliationStatusEmpty
	case failedCount == 0:
		return models.ReconciliationStatusCompleted
	case successCount == 0:
		return models.ReconciliationStatusFailed
	default:
		return models.ReconciliationStatusPartial
	}
}
