package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"farmhub/internal/apperr"
	"farmhub/internal/auth"
	"farmhub/internal/models"
	"farmhub/internal/service"
	"farmhub/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	paymentService *service.PaymentService
	jwtSecret      string
	logger         *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(orderService *service.OrderService, paymentService *service.PaymentService, jwtSecret string) *Handler {
	return &Handler{
		orderService:   orderService,
		paymentService: paymentService,
		jwtSecret:      jwtSecret,
		logger:         util.NamedLogger("api"),
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

	// Provider callbacks authenticate with their own shared secret, not a
	// session.
	v1.POST("/payments/:provider/webhook", h.paymentWebhook)

	authed := v1.Group("", h.authMiddleware())
	{
		authed.POST("/orders", h.createOrder)
		authed.GET("/orders", h.listOrders)
		authed.GET("/orders/:id", h.getOrder)
		authed.PATCH("/orders/:id/accept", h.acceptOrder)
		authed.PATCH("/orders/:id/start", h.startOrder)
		authed.PATCH("/orders/:id/cancel", h.cancelOrder)
		authed.PATCH("/orders/:id/confirm/buyer", h.confirmOrder(models.RoleBuyer))
		authed.PATCH("/orders/:id/confirm/farmer", h.confirmOrder(models.RoleFarmer))

		authed.POST("/payments/:provider/initiate", h.initiatePayment)
		authed.GET("/payments/:id", h.getPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if len(header) < 8 || header[:7] != "Bearer " {
			h.respondError(c, apperr.Unauthenticated("bearer token required"))
			c.Abort()
			return
		}

		actor, err := auth.ParseToken(h.jwtSecret, header[7:])
		if err != nil {
			h.respondError(c, err)
			c.Abort()
			return
		}

		c.Set("actor", actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) models.Actor {
	actor, _ := c.MustGet("actor").(models.Actor)
	return actor
}

// createOrder handles order creation
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, apperr.Validation("invalid request body"))
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, err := h.orderService.CreateOrder(c.Request.Context(), actorFrom(c), &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders returns the caller's orders filtered by role side
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), actorFrom(c), c.Query("status"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderID, actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) acceptOrder(c *gin.Context) {
	h.transition(c, h.orderService.Accept)
}

func (h *Handler) startOrder(c *gin.Context) {
	h.transition(c, h.orderService.Start)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, orderID int64, actor models.Actor) (*models.Order, error)) {
	orderID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	order, err := fn(c.Request.Context(), orderID, actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// cancelOrder handles order cancellation by either participant
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	order, err := h.orderService.Cancel(c.Request.Context(), orderID, actorFrom(c), body.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// confirmOrder handles completion confirmation. The route fixes which role
// may call it; the service still derives the flag from the caller's
// identity.
func (h *Handler) confirmOrder(expectedRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		if actor.Role != expectedRole {
			h.respondError(c, apperr.Forbidden("only %ss can confirm here", expectedRole))
			return
		}

		orderID, ok := h.paramID(c, "id")
		if !ok {
			return
		}

		order, err := h.orderService.ConfirmCompletion(c.Request.Context(), orderID, actor)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// initiatePayment creates a pending payment and returns the provider
// checkout payload
func (h *Handler) initiatePayment(c *gin.Context) {
	var body struct {
		OrderID int64 `json:"orderId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperr.Validation("orderId is required"))
		return
	}

	_, payload, err := h.paymentService.Initiate(c.Request.Context(), actorFrom(c), body.OrderID, c.Param("provider"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, payload)
}

// paymentWebhook applies a provider settlement callback
func (h *Handler) paymentWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, apperr.Validation("unreadable body"))
		return
	}

	err = h.paymentService.HandleWebhook(
		c.Request.Context(),
		c.Param("provider"),
		c.Request.Header,
		c.Request.URL.Query(),
		body,
	)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Acknowledge regardless of whether a status changed so provider
	// retries converge.
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// getPayment handles participant-only payment reads
func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := h.paramID(c, "id")
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), paymentID, actorFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		h.respondError(c, apperr.Validation("invalid %s", name))
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(err)

	message := err.Error()
	if kind == apperr.KindUnknown {
		h.logger.Error("Internal error", zap.String("path", c.FullPath()), zap.Error(err))
		message = "internal error"
	}

	c.JSON(status, gin.H{
		"error":   kind.String(),
		"message": message,
	})
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
