// Package sku picks default variants and normalizes SKU strings.
// SKUs are compared only in their normalized form: trimmed and upper-cased.
package sku

import (
	"strings"

	"storefront-cart/internal/models"
)

// Normalize trims and upper-cases a raw SKU. It returns "" for anything that
// is not a non-blank string, and "" is treated as "no SKU" everywhere.
func Normalize(raw any) string {
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case *string:
		if v == nil {
			return ""
		}
		s = *v
	default:
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// ResolveDefaultVariant picks the variant a line gets when none was chosen.
// First match wins: active with a SKU, in stock with a SKU, any SKU, then the
// first variant. Returns nil when the product has no variants.
func ResolveDefaultVariant(product *models.Product) *models.Variant {
	if product == nil || len(product.Variants) == 0 {
		return nil
	}
	variants := product.Variants

	for i := range variants {
		if variants[i].Status == models.VariantStatusActive && Normalize(variants[i].SKU) != "" {
			return &variants[i]
		}
	}
	for i := range variants {
		if variants[i].Stock != nil && *variants[i].Stock > 0 && Normalize(variants[i].SKU) != "" {
			return &variants[i]
		}
	}
	for i := range variants {
		if Normalize(variants[i].SKU) != "" {
			return &variants[i]
		}
	}
	return &variants[0]
}

// ResolveDefaultSku returns the normalized SKU of the default variant, or ""
func ResolveDefaultSku(product *models.Product) string {
	variant := ResolveDefaultVariant(product)
	if variant == nil {
		return ""
	}
	return Normalize(variant.SKU)
}

// FindVariant returns the product variant whose SKU matches sku case-insensitively
func FindVariant(product *models.Product, sku string) *models.Variant {
	want := Normalize(sku)
	if product == nil || want == "" {
		return nil
	}
	for i := range product.Variants {
		if Normalize(product.Variants[i].SKU) == want {
			return &product.Variants[i]
		}
	}
	return nil
}

// VariantIDForSku translates a SKU into the variant database id the
// marketplace API still expects. Only network adapters should call this.
func VariantIDForSku(product *models.Product, sku string) (string, bool) {
	variant := FindVariant(product, sku)
	if variant == nil || variant.Identifier() == "" {
		return "", false
	}
	return variant.Identifier(), true
}
