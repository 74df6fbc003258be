package models

import (
	"errors"
	"fmt"
)

// Error codes surfaced to callers
const (
	CodeSkuRequired            = "SKU_REQUIRED"
	CodeInvalidSku             = "INVALID_SKU"
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeOutOfStock             = "OUT_OF_STOCK"
	CodeLineNotFound           = "LINE_NOT_FOUND"
	CodeInvalidProduct         = "INVALID_PRODUCT"
	CodeMalformedPersistedData = "MALFORMED_PERSISTED_DATA"
	CodeRemoteFailure          = "REMOTE_FAILURE"
	CodeStorageFailure         = "STORAGE_FAILURE"
)

// CartError is a cart rejection carrying a machine-readable code
type CartError struct {
	Code    string
	Message string
	Err     error
}

func (e *CartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CartError) Unwrap() error {
	return e.Err
}

// Is matches any CartError with the same code
func (e *CartError) Is(target error) bool {
	t, ok := target.(*CartError)
	return ok && t.Code == e.Code
}

var (
	ErrSkuRequired     = &CartError{Code: CodeSkuRequired, Message: "a variant must be selected for this product"}
	ErrInvalidSku      = &CartError{Code: CodeInvalidSku, Message: "sku does not match any variant of the product"}
	ErrInvalidQuantity = &CartError{Code: CodeInvalidQuantity, Message: "quantity must be a positive integer"}
	ErrOutOfStock      = &CartError{Code: CodeOutOfStock, Message: "requested quantity is not in stock"}
	ErrLineNotFound    = &CartError{Code: CodeLineNotFound, Message: "cart line not found"}
	ErrInvalidProduct  = &CartError{Code: CodeInvalidProduct, Message: "product id is required"}
	ErrRemoteFailure   = &CartError{Code: CodeRemoteFailure, Message: "marketplace cart api call failed"}
	ErrStorageFailure  = &CartError{Code: CodeStorageFailure, Message: "guest cart storage is unavailable"}
)

// NewCartError builds a coded error with a specific message
func NewCartError(code, message string) *CartError {
	return &CartError{Code: code, Message: message}
}

// WrapCartError attaches a code to an underlying error
func WrapCartError(code, message string, err error) *CartError {
	return &CartError{Code: code, Message: message, Err: err}
}

// CodeOf returns the cart error code carried by err, or "" if there is none
func CodeOf(err error) string {
	var cartErr *CartError
	if errors.As(err, &cartErr) {
		return cartErr.Code
	}
	return ""
}
