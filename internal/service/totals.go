package service

import (
	"storefront-cart/internal/models"
	"storefront-cart/internal/sku"

	"github.com/shopspring/decimal"
)

// UnitPrice resolves the price of one unit of a line: the variant's price,
// else the product's discount price, else its default price. Unresolvable
// prices are zero.
func UnitPrice(line models.CartLine) decimal.Decimal {
	product := line.Product
	if product == nil {
		return decimal.Zero
	}
	if variant := sku.FindVariant(product, line.SKU); variant != nil && variant.Price != nil && variant.Price.Valid {
		return variant.Price.Amount
	}
	if product.DiscountPrice != nil && product.DiscountPrice.Valid && product.DiscountPrice.Amount.IsPositive() {
		return product.DiscountPrice.Amount
	}
	if product.DefaultPrice.Valid {
		return product.DefaultPrice.Amount
	}
	return decimal.Zero
}

// ComputeTotals sums unit price times quantity over the cart. Count is the
// number of units. Lines with a non-positive quantity contribute nothing.
func ComputeTotals(cart *models.Cart) models.Totals {
	totals := models.Totals{Total: decimal.Zero}
	if cart == nil {
		return totals
	}
	for _, line := range cart.Products {
		quantity := int64(line.Quantity)
		if quantity <= 0 {
			continue
		}
		totals.Total = totals.Total.Add(UnitPrice(line).Mul(decimal.NewFromInt(quantity)))
		totals.Count += int(quantity)
	}
	return totals
}
