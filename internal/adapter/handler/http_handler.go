package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/core/service"
	"github.com/wzuhqa/flashstock/internal/ratelimit"
)

type Handler struct {
	orders       *service.OrderService
	reservations *service.ReservationService
	limiter      *ratelimit.Limiter
	rateLimit    int64
	rateWindow   time.Duration
	log          *zap.Logger
}

func NewHandler(orders *service.OrderService, reservations *service.ReservationService, limiter *ratelimit.Limiter, rateLimit int64, rateWindow time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		orders:       orders,
		reservations: reservations,
		limiter:      limiter,
		rateLimit:    rateLimit,
		rateWindow:   rateWindow,
		log:          log,
	}
}

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", h.rateLimitMiddleware())
	api.POST("/purchase", h.purchase)
	api.POST("/reservations", h.reserve)
	api.POST("/reservations/:id/confirm", h.confirm)
	api.POST("/reservations/:id/release", h.release)
	api.GET("/stock/:productID", h.stock)

	return r
}

func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		res := h.limiter.Allow(c.Request.Context(), "ip:"+c.ClientIP(), h.rateLimit, h.rateWindow)

		c.Header("X-RateLimit-Limit", strconv.FormatInt(h.rateLimit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetIn.Seconds()), 10))

		if !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

type purchaseRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	UserID    string `json:"user_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

func (h *Handler) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	err := h.orders.Purchase(c.Request.Context(), req.RequestID, req.UserID, req.ProductID, req.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateRequest):
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "duplicate request"})
		case errors.Is(err, service.ErrInsufficientStock), errors.Is(err, service.ErrStockConflict):
			// Both reasons collapse to one user-facing message.
			c.JSON(http.StatusGone, gin.H{"success": false, "message": "sold out"})
		default:
			h.log.Error("purchase failed", zap.String("request_id", req.RequestID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "order placed successfully"})
}

type reserveRequest struct {
	ProductID     string `json:"product_id" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	ReservationID string `json:"reservation_id" binding:"required"`
	TTLSeconds    int    `json:"ttl_seconds"`
}

func (h *Handler) reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request body"})
		return
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	err := h.reservations.Reserve(c.Request.Context(), req.ProductID, req.Quantity, req.ReservationID, ttl)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientStock), errors.Is(err, service.ErrStockConflict):
			c.JSON(http.StatusGone, gin.H{"success": false, "message": "item no longer available in the requested quantity"})
		case errors.Is(err, service.ErrInvalidQuantity):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "quantity must be positive"})
		default:
			h.log.Error("reserve failed", zap.String("reservation_id", req.ReservationID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "reservation failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "reservation_id": req.ReservationID})
}

func (h *Handler) confirm(c *gin.Context) {
	h.reservations.Confirm(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) release(c *gin.Context) {
	h.reservations.Release(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) stock(c *gin.Context) {
	stock, err := h.reservations.Stock(c.Request.Context(), c.Param("productID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": c.Param("productID"), "stock": stock})
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
