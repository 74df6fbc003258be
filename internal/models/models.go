package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VariantStatusActive marks a variant as purchasable; any other status is not
const VariantStatusActive = "active"

// Variant is one purchasable configuration of a product
type Variant struct {
	ID         string            `json:"_id,omitempty"`
	AltID      string            `json:"id,omitempty"`
	SKU        string            `json:"sku"`
	Status     string            `json:"status,omitempty"`
	Stock      *int              `json:"stock,omitempty"`
	Price      *Price            `json:"price,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Identifier returns the database id of the variant, whichever field carried it
func (v Variant) Identifier() string {
	if v.ID != "" {
		return v.ID
	}
	return v.AltID
}

// Product is the catalog product as served by the marketplace API.
// Cart lines keep a copy of it as their snapshot.
type Product struct {
	ID            string    `json:"_id,omitempty"`
	AltID         string    `json:"id,omitempty"`
	Name          string    `json:"name"`
	DefaultPrice  Price     `json:"defaultPrice"`
	DiscountPrice *Price    `json:"discountPrice,omitempty"`
	ImageCover    string    `json:"imageCover,omitempty"`
	Stock         *int      `json:"stock,omitempty"`
	Variants      []Variant `json:"variants"`
}

// Identifier returns the product id, whichever field carried it
func (p Product) Identifier() string {
	if p.ID != "" {
		return p.ID
	}
	return p.AltID
}

// VariantCount returns the number of variants the product has
func (p Product) VariantCount() int {
	return len(p.Variants)
}

// Snapshot copies the fields a cart line needs for offline display and pricing
func (p Product) Snapshot() *Product {
	id := p.Identifier()
	snap := &Product{
		ID:           id,
		AltID:        id,
		Name:         p.Name,
		DefaultPrice: p.DefaultPrice,
		ImageCover:   p.ImageCover,
		Variants:     make([]Variant, len(p.Variants)),
	}
	if p.DiscountPrice != nil {
		discount := *p.DiscountPrice
		snap.DiscountPrice = &discount
	}
	if p.Stock != nil {
		stock := *p.Stock
		snap.Stock = &stock
	}
	for i, v := range p.Variants {
		cp := v
		if v.Attributes != nil {
			cp.Attributes = make(map[string]string, len(v.Attributes))
			for k, val := range v.Attributes {
				cp.Attributes[k] = val
			}
		}
		snap.Variants[i] = cp
	}
	return snap
}

// CartLine is one distinct purchasable unit in a cart
type CartLine struct {
	ID           string   `json:"_id"`
	ProductID    string   `json:"productId"`
	Product      *Product `json:"product"`
	Quantity     Quantity `json:"quantity"`
	SKU          string   `json:"sku,omitempty"`
	VariantSKU   string   `json:"variantSku,omitempty"`
	VariantCount int      `json:"variantCount"`
}

// Cart is the canonical in-memory cart shape for guests and accounts alike
type Cart struct {
	Products []CartLine `json:"products"`
}

// EmptyCart returns a cart with a non-nil, empty line list
func EmptyCart() *Cart {
	return &Cart{Products: []CartLine{}}
}

// GuestCartDocument is the persisted wrapper of the guest cart
type GuestCartDocument struct {
	Cart Cart `json:"cart"`
}

// Totals is the aggregate of a cart
type Totals struct {
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

// ReconciliationRun is the audit record of one guest-to-account merge
type ReconciliationRun struct {
	ID           int64     `db:"id" json:"id"`
	EventID      string    `db:"event_id" json:"event_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	GuestID      string    `db:"guest_id" json:"guest_id"`
	SuccessCount int       `db:"success_count" json:"success_count"`
	FailedCount  int       `db:"failed_count" json:"failed_count"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Reconciliation statuses
const (
	ReconciliationStatusEmpty     = "EMPTY"
	ReconciliationStatusCompleted = "COMPLETED"
	ReconciliationStatusPartial   = "PARTIAL"
	ReconciliationStatusFailed    = "FAILED"
)
