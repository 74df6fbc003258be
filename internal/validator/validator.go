// Package validator decides whether cart lines are well-formed and rewrites
// them into the canonical CartLine shape. It is the only place that reads the
// legacy variant fields of persisted and wire data.
package validator

import (
	"encoding/json"
	"fmt"
	"time"

	"storefront-cart/internal/models"
	"storefront-cart/internal/sku"
)

// RawLine is a cart line as found in storage or in an API response, before
// normalization. Variant and VariantID are decoded so that legacy payloads
// parse, but they are never copied into a CartLine.
type RawLine struct {
	ID           string          `json:"_id"`
	AltID        string          `json:"id"`
	ProductID    string          `json:"productId"`
	Product      *models.Product `json:"product"`
	Quantity     models.Quantity `json:"quantity"`
	SKU          any             `json:"sku"`
	VariantSKU   any             `json:"variantSku"`
	Variant      json.RawMessage `json:"variant,omitempty"`
	VariantID    json.RawMessage `json:"variantId,omitempty"`
	VariantCount int             `json:"variantCount"`
}

// ToRaw turns a canonical line back into a raw one, for re-validation
func ToRaw(line models.CartLine) RawLine {
	raw := RawLine{
		ID:           line.ID,
		ProductID:    line.ProductID,
		Product:      line.Product,
		Quantity:     line.Quantity,
		VariantCount: line.VariantCount,
	}
	if line.SKU != "" {
		raw.SKU = line.SKU
	}
	if line.VariantSKU != "" {
		raw.VariantSKU = line.VariantSKU
	}
	return raw
}

// LineSku reads the variant SKU of a raw line, preferring sku over the
// legacy variantSku alias.
func LineSku(raw RawLine) string {
	if s := sku.Normalize(raw.SKU); s != "" {
		return s
	}
	return sku.Normalize(raw.VariantSKU)
}

// IsValidLine reports whether a raw line is well-formed: it has a product, and
// carries a SKU when that product has more than one variant.
func IsValidLine(raw RawLine) bool {
	if raw.Product == nil {
		return false
	}
	if raw.Product.VariantCount() > 1 && LineSku(raw) == "" {
		return false
	}
	return true
}

// NewLineID builds the client-side id of a guest line
func NewLineID(at time.Time, productID, lineSku string) string {
	if lineSku == "" {
		lineSku = "no-sku"
	}
	return fmt.Sprintf("guest-%d-%s-%s", at.UnixMilli(), productID, lineSku)
}

// StableLineID is the id of a persisted line that arrived without one. It
// depends only on the line key, which is unique within a normalized cart.
func StableLineID(productID, lineSku string) string {
	if lineSku == "" {
		lineSku = "no-sku"
	}
	return fmt.Sprintf("line-%s-%s", productID, lineSku)
}

// StockLimit returns the stock bounding a line: the variant's when the SKU
// resolves to a variant with known stock, else the product's.
func StockLimit(product *models.Product, lineSku string) (int, bool) {
	if product == nil {
		return 0, false
	}
	if variant := sku.FindVariant(product, lineSku); variant != nil && variant.Stock != nil {
		return *variant.Stock, true
	}
	if product.Stock != nil {
		return *product.Stock, true
	}
	return 0, false
}

// BoundQuantity clamps quantity to the line's stock. Quantities below 1 are
// invalid, and a line with no stock left is out of stock.
func BoundQuantity(quantity int, product *models.Product, lineSku string) (int, error) {
	if quantity < 1 {
		return 0, models.ErrInvalidQuantity
	}
	limit, ok := StockLimit(product, lineSku)
	if !ok {
		return quantity, nil
	}
	if limit < 1 {
		return 0, models.ErrOutOfStock
	}
	if quantity > limit {
		return limit, nil
	}
	return quantity, nil
}

// ResolveLineSku applies the variant rules to a requested SKU and returns the
// SKU the line must carry ("" for none).
//
//   - more than one variant: the requested SKU, else the default variant's; neither is SKU_REQUIRED
//   - exactly one variant: the requested SKU, else the default variant's
//   - no variants: always none
//
// A resulting SKU must match one of the product's variants, else INVALID_SKU.
func ResolveLineSku(product *models.Product, requested string) (string, error) {
	variantCount := product.VariantCount()
	lineSku := sku.Normalize(requested)

	switch {
	case variantCount == 0:
		return "", nil
	case lineSku == "":
		lineSku = sku.ResolveDefaultSku(product)
		if lineSku == "" && variantCount > 1 {
			return "", models.ErrSkuRequired
		}
	}

	if lineSku != "" && sku.FindVariant(product, lineSku) == nil {
		return "", models.ErrInvalidSku
	}
	return lineSku, nil
}

// NormalizeLine rewrites a raw line into the canonical shape, or returns nil
// when the line cannot be kept without guessing which variant it means.
// Lines stored without an id get StableLineID, so the id survives reloads.
func NormalizeLine(raw RawLine) *models.CartLine {
	if raw.Product == nil {
		return nil
	}
	product := raw.Product
	variantCount := product.VariantCount()

	// the line was written against a multi-variant product whose snapshot
	// no longer lists them, so its SKU cannot be checked
	if raw.VariantCount > 1 && variantCount < 2 {
		return nil
	}

	lineSku, err := ResolveLineSku(product, LineSku(raw))
	if err != nil {
		return nil
	}

	productID := raw.ProductID
	if productID == "" {
		productID = product.Identifier()
	}
	if productID == "" {
		return nil
	}

	quantity, err := BoundQuantity(int(raw.Quantity), product, lineSku)
	if err != nil {
		return nil
	}

	id := raw.ID
	if id == "" {
		id = raw.AltID
	}
	if id == "" {
		id = StableLineID(productID, lineSku)
	}

	return &models.CartLine{
		ID:           id,
		ProductID:    productID,
		Product:      product,
		Quantity:     models.Quantity(quantity),
		SKU:          lineSku,
		VariantSKU:   lineSku,
		VariantCount: variantCount,
	}
}

// LineKey identifies a distinct cart line: product plus normalized SKU
func LineKey(productID, lineSku string) string {
	return productID + "\x00" + sku.Normalize(lineSku)
}

// NormalizeLines normalizes every raw line, drops the ones that cannot be
// kept, and merges lines sharing a product and SKU into the first of them.
func NormalizeLines(raws []RawLine) []models.CartLine {
	lines := make([]models.CartLine, 0, len(raws))
	index := make(map[string]int, len(raws))

	for _, raw := range raws {
		line := NormalizeLine(raw)
		if line == nil {
			continue
		}

		key := LineKey(line.ProductID, line.SKU)
		if i, ok := index[key]; ok {
			merged := &lines[i]
			quantity, err := BoundQuantity(int(merged.Quantity+line.Quantity), merged.Product, merged.SKU)
			if err == nil {
				merged.Quantity = models.Quantity(quantity)
			}
			continue
		}

		index[key] = len(lines)
		lines = append(lines, *line)
	}
	return lines
}

// NormalizeCart decodes a cart payload of any supported shape and returns its
// canonical lines. Elements that fail to decode are dropped.
func NormalizeCart(payload []byte) []models.CartLine {
	raws, ok := DecodeLines(payload)
	if !ok {
		return []models.CartLine{}
	}
	return NormalizeLines(raws)
}

// DecodeLines finds the line list in a payload and decodes each element.
// It reports false when the payload has no recognizable line list.
func DecodeLines(payload []byte) ([]RawLine, bool) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, false
	}

	elements, _, ok := ExtractLines(decoded)
	if !ok {
		return nil, false
	}

	raws := make([]RawLine, 0, len(elements))
	for _, element := range elements {
		data, err := json.Marshal(element)
		if err != nil {
			continue
		}
		var raw RawLine
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		raws = append(raws, raw)
	}
	return raws, true
}
