// Package remote talks to the marketplace cart API on behalf of signed-in
// shoppers. It is the only place variant database ids appear: lines are
// identified by SKU everywhere else and translated here, per request.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"storefront-cart/internal/models"
	"storefront-cart/internal/sku"
	"storefront-cart/internal/util"
	"storefront-cart/internal/validator"

	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// Client is an HTTP client for the marketplace cart endpoints
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a client for the API rooted at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  util.GetLogger(),
	}
}

// addToCartRequest is the body of POST /cart. The API still identifies the
// variant by database id.
type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	VariantID string `json:"variantId,omitempty"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// GetCart fetches and normalizes the account cart
func (c *Client) GetCart(ctx context.Context, token string) ([]models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "RemoteClient.GetCart")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "/cart", token, nil)
	if err != nil {
		return nil, err
	}
	return validator.NormalizeCart(body), nil
}

// AddLine adds quantity of product to the account cart. lineSku must already
// be resolved; it is translated to the variant id right before the call.
func (c *Client) AddLine(ctx context.Context, token string, product models.Product, quantity int, lineSku string) ([]models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "RemoteClient.AddLine",
		"product_id", product.Identifier(), "sku", lineSku)
	defer span.End()

	req := addToCartRequest{
		ProductID: product.Identifier(),
		Quantity:  quantity,
	}
	if lineSku != "" {
		variantID, ok := sku.VariantIDForSku(&product, lineSku)
		if !ok {
			return nil, models.NewCartError(models.CodeInvalidSku,
				fmt.Sprintf("sku %s has no variant id on product %s", lineSku, product.Identifier()))
		}
		req.VariantID = variantID
	}

	body, err := c.do(ctx, http.MethodPost, "/cart", token, req)
	if err != nil {
		return nil, err
	}
	return validator.NormalizeCart(body), nil
}

// UpdateLine sets the quantity of an account cart item
func (c *Client) UpdateLine(ctx context.Context, token, itemID string, quantity int) error {
	ctx, span := util.StartSpan(ctx, "RemoteClient.UpdateLine", "item_id", itemID)
	defer span.End()

	_, err := c.do(ctx, http.MethodPatch, "/cart/items/"+url.PathEscape(itemID), token,
		updateQuantityRequest{Quantity: quantity})
	return err
}

// RemoveLine deletes an account cart item
func (c *Client) RemoveLine(ctx context.Context, token, itemID string) error {
	ctx, span := util.StartSpan(ctx, "RemoteClient.RemoveLine", "item_id", itemID)
	defer span.End()

	_, err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(itemID), token, nil)
	return err
}

// ClearCart empties the account cart
func (c *Client) ClearCart(ctx context.Context, token string) error {
	ctx, span := util.StartSpan(ctx, "RemoteClient.ClearCart")
	defer span.End()

	_, err := c.do(ctx, http.MethodDelete, "/cart", token, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path, token string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		util.RemoteCartRequestDuration.WithLabelValues(method, "error").Observe(time.Since(start).Seconds())
		return nil, models.WrapCartError(models.CodeRemoteFailure,
			fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer resp.Body.Close()

	util.RemoteCartRequestDuration.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.WrapCartError(models.CodeRemoteFailure,
			fmt.Sprintf("%s %s: failed to read response", method, path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Marketplace cart API rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return nil, decodeError(method, path, resp.StatusCode, body)
	}
	return body, nil
}

// decodeError keeps the API's own variant codes so callers can still prompt
// for a variant; everything else is a remote failure.
func decodeError(method, path string, status int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	message := apiErr.Message
	if message == "" {
		message = apiErr.Error
	}
	if message == "" {
		message = http.StatusText(status)
	}

	switch apiErr.Code {
	case models.CodeSkuRequired, models.CodeInvalidSku, models.CodeOutOfStock, models.CodeInvalidQuantity:
		return models.NewCartError(apiErr.Code, message)
	}
	if status == http.StatusNotFound && strings.HasPrefix(path, "/cart/items/") {
		return models.NewCartError(models.CodeLineNotFound, message)
	}
	return models.WrapCartError(models.CodeRemoteFailure,
		fmt.Sprintf("%s %s returned %d", method, path, status),
		errors.New(message))
}
