package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"storefront-cart/internal/models"
	"storefront-cart/internal/service"
	"storefront-cart/internal/sku"
	"storefront-cart/internal/util"
	"storefront-cart/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ReconciliationLister reads the reconciliation audit trail
type ReconciliationLister interface {
	ListReconciliations(ctx context.Context, userID string, limit int) ([]models.ReconciliationRun, error)
}

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	cartService *service.CartService
	reconciler  *service.Reconciler
	runs        ReconciliationLister
	jwtSecret   []byte
	readiness   []Pinger
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	cartService *service.CartService,
	reconciler *service.Reconciler,
	runs ReconciliationLister,
	jwtSecret string,
	readiness ...Pinger,
) *Handler {
	return &Handler{
		cartService: cartService,
		reconciler:  reconciler,
		runs:        runs,
		jwtSecret:   []byte(jwtSecret),
		readiness:   readiness,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(SessionMiddleware(h.jwtSecret))
	{
		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/lines", h.addLine)
		v1.PATCH("/cart/lines/:id", h.updateLine)
		v1.DELETE("/cart/lines/:id", h.removeLine)
		v1.POST("/cart/totals", h.computeTotals)

		v1.POST("/session/login", h.login)
		v1.POST("/session/logout", h.logout)
		v1.GET("/reconciliations", h.listReconciliations)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings redis and postgres
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"details": err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type addLineRequest struct {
	Product  models.Product  `json:"product"`
	Quantity models.Quantity `json:"quantity"`
	SKU      any             `json:"sku"`
}

type updateLineRequest struct {
	Quantity models.Quantity `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.cartService.GetCart(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) addLine(c *gin.Context) {
	var req addLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "BAD_REQUEST",
			"details": err.Error(),
		})
		return
	}

	view, err := h.cartService.AddToCart(c.Request.Context(), SessionFrom(c),
		req.Product, int(req.Quantity), sku.Normalize(req.SKU))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) updateLine(c *gin.Context) {
	var req updateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"code":    "BAD_REQUEST",
			"details": err.Error(),
		})
		return
	}

	view, err := h.cartService.UpdateQuantity(c.Request.Context(), SessionFrom(c), c.Param("id"), int(req.Quantity))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) removeLine(c *gin.Context) {
	view, err := h.cartService.RemoveLine(c.Request.Context(), SessionFrom(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) clearCart(c *gin.Context) {
	view, err := h.cartService.ClearCart(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// computeTotals normalizes whatever cart payload the client holds and totals it
func (h *Handler) computeTotals(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "code": "BAD_REQUEST"})
		return
	}

	cart := models.Cart{Products: validator.NormalizeCart(body)}
	c.JSON(http.StatusOK, service.CartView{Cart: cart, Totals: service.ComputeTotals(&cart)})
}

// login replays the caller's guest cart into the account cart
func (h *Handler) login(c *gin.Context) {
	result, err := h.reconciler.Reconcile(c.Request.Context(), SessionFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// logout cancels any reconciliation still running for the caller
func (h *Handler) logout(c *gin.Context) {
	sess := SessionFrom(c)
	if !sess.Authenticated() {
		h.respondError(c, service.ErrNotAuthenticated)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": h.reconciler.Cancel(sess.UserID)})
}

// maxReconciliationsPage caps the limit query parameter of the history route
const maxReconciliationsPage = 100

func (h *Handler) listReconciliations(c *gin.Context) {
	sess := SessionFrom(c)
	if !sess.Authenticated() {
		h.respondError(c, service.ErrNotAuthenticated)
		return
	}
	if h.runs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Reconciliation history unavailable", "code": "UNAVAILABLE"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer", "code": "BAD_REQUEST"})
		return
	}
	if limit > maxReconciliationsPage {
		limit = maxReconciliationsPage
	}

	runs, err := h.runs.ListReconciliations(c.Request.Context(), sess.UserID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// respondError maps cart error codes onto HTTP statuses. The body always
// carries a code.
func (h *Handler) respondError(c *gin.Context, err error) {
	var cartErr *models.CartError
	if errors.As(err, &cartErr) {
		c.JSON(statusForCode(cartErr.Code), gin.H{
			"error": cartErr.Message,
			"code":  cartErr.Code,
		})
		return
	}

	if errors.Is(err, service.ErrNotAuthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "UNAUTHORIZED"})
		return
	}

	h.logger.Error("Request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"code":    "INTERNAL",
		"details": err.Error(),
	})
}

func statusForCode(code string) int {
	switch code {
	case models.CodeSkuRequired, models.CodeInvalidSku, models.CodeInvalidQuantity,
		models.CodeOutOfStock, models.CodeInvalidProduct:
		return http.StatusUnprocessableEntity
	case models.CodeLineNotFound:
		return http.StatusNotFound
	case models.CodeRemoteFailure:
		return http.StatusBadGateway
	case models.CodeStorageFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
