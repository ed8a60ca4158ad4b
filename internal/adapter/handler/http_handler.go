package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

const (
	productIDParam  = "id"
	requestIDHeader = "X-Request-ID"
)

type HTTPHandler struct {
	gate StockGate
}

type PurchaseHTTPResponse struct {
	Success          bool      `json:"success"`
	Outcome          string    `json:"outcome"`
	Message          string    `json:"message"`
	Retryable        bool      `json:"retryable"`
	AttemptID        string    `json:"attempt_id,omitempty"`
	GateRemaining    *int64    `json:"gate_remaining,omitempty"`
	DurableRemaining *int64    `json:"durable_remaining,omitempty"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

type ResyncHTTPResponse struct {
	Success bool   `json:"success"`
	Outcome string `json:"outcome"`
	Message string `json:"message"`
	Stock   *int64 `json:"stock,omitempty"`
	Error   string `json:"error,omitempty"`
}

type StockHTTPResponse struct {
	ProductID int64  `json:"product_id"`
	Gate      *int64 `json:"gate"`
	Durable   int64  `json:"durable"`
}

func NewHTTPHandler(gate StockGate) *HTTPHandler {
	return &HTTPHandler{gate: gate}
}

// NewRouter wires the HTTP routes. metrics may be nil.
func NewRouter(h *HTTPHandler, logger zerolog.Logger, metrics http.Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	router.GET("/health", h.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}

	seckill := router.Group("/seckill")
	seckill.POST("/purchase/:"+productIDParam, h.Purchase)
	seckill.POST("/reset/:"+productIDParam, h.Reset)
	seckill.GET("/stock/:"+productIDParam, h.Stock)

	return router
}

// Purchase takes one unit of a product. With ?reseed=true a sold-out gate is
// rebuilt from the database once before giving up.
func (h *HTTPHandler) Purchase(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	reseed, _ := strconv.ParseBool(c.Query("reseed"))

	var res domain.PurchaseResult
	if reseed {
		res = h.gate.PurchaseWithReseed(c.Request.Context(), productID)
	} else {
		res = h.gate.Purchase(c.Request.Context(), productID)
	}

	zerolog.Ctx(c.Request.Context()).Debug().
		Str("attempt_id", res.AttemptID).
		Str("outcome", string(res.Outcome)).
		Msg("purchase handled")

	body := PurchaseHTTPResponse{
		Success:   res.Outcome == domain.OutcomeSuccess,
		Outcome:   string(res.Outcome),
		Message:   purchaseMessage(res.Outcome),
		Retryable: res.Outcome.Retryable(),
		AttemptID: res.AttemptID,
		Error:     res.ErrorDetail,
		Timestamp: res.CompletedAt,
	}
	if body.Success {
		body.GateRemaining = &res.GateRemaining
		body.DurableRemaining = &res.DurableRemaining
	}

	c.JSON(purchaseStatus(res.Outcome), body)
}

// Reset rebuilds the gate counter from the durable stock.
func (h *HTTPHandler) Reset(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	res := h.gate.Resync(c.Request.Context(), productID)

	body := ResyncHTTPResponse{
		Success: res.Outcome == domain.OutcomeSuccess,
		Outcome: string(res.Outcome),
		Message: resyncMessage(res.Outcome),
		Error:   res.ErrorDetail,
	}

	status := http.StatusOK
	switch res.Outcome {
	case domain.OutcomeSuccess:
		body.Stock = &res.Stock
		body.Error = ""
	case domain.OutcomeProductNotFound:
		status = http.StatusNotFound
	default:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, body)
}

func (h *HTTPHandler) Stock(c *gin.Context) {
	productID, ok := parseProductID(c)
	if !ok {
		return
	}

	st, err := h.gate.GetStock(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Int64("product_id", productID).Msg("stock lookup failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stock lookup failed"})
		return
	}

	body := StockHTTPResponse{ProductID: st.ProductID, Durable: st.Durable}
	if st.GatePresent {
		body.Gate = &st.Gate
	}

	c.JSON(http.StatusOK, body)
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	if err := h.gate.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequestLogger attaches a request-scoped zerolog logger carrying the request
// id to the request context and logs each completed request.
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request handled")
	}
}

func purchaseStatus(outcome domain.Outcome) int {
	switch outcome {
	case domain.OutcomeSuccess:
		return http.StatusOK
	case domain.OutcomeSoldOut:
		return http.StatusGone
	case domain.OutcomeFailure:
		return http.StatusConflict
	case domain.OutcomeProductNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

func parseProductID(c *gin.Context) (int64, bool) {
	productID, err := strconv.ParseInt(c.Param(productIDParam), 10, 64)
	if err != nil || productID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return 0, false
	}
	return productID, true
}
