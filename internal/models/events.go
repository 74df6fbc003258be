package models

import "time"

// Event types
const (
	EventTypeCartReconciled = "CART_RECONCILED"
	EventTypeOrderConfirmed = "ORDER_CONFIRMED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CartReconciledEvent published after a guest cart was replayed into an account cart
type CartReconciledEvent struct {
	BaseEvent
	UserID       string   `json:"user_id"`
	GuestID      string   `json:"guest_id"`
	SuccessCount int      `json:"success_count"`
	FailedCount  int      `json:"failed_count"`
	FailedSkus   []string `json:"failed_skus,omitempty"`
}

// OrderConfirmedEvent published by the order service once an order is confirmed
type OrderConfirmedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
}
