package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"order-saga-client/internal/api"
	"order-saga-client/internal/utils"
)

// Payment methods with scripted saga results. Any other method pays at once.
const (
	MethodDeclined = "DECLINED"
	MethodAsync    = "ASYNC"
)

// MsgPaymentDeclined is the saga failure reason for a declined payment
const MsgPaymentDeclined = "Payment declined by the payment gateway"

// HighRiskThreshold is the order total above which risk analysis reports HIGH
var HighRiskThreshold = decimal.NewFromInt(1000)

// BasePath is where the order API is mounted
const BasePath = "/api/v1"

type replay struct {
	status int
	body   api.CreateOrderResponse
}

// Server is an in-memory order backend that runs the create-order saga
// synchronously and answers with the same wire shapes as the real service.
type Server struct {
	mu       sync.Mutex
	orders   map[string]*api.Order
	byNumber map[string]string
	replays  map[string]replay
	payments map[string]api.PaymentStatus
	seq      int

	now    func() time.Time
	logger *utils.Logger
	engine *gin.Engine
}

// New builds a sandbox with its routes registered
func New(logger *utils.Logger) *Server {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		orders:   make(map[string]*api.Order),
		byNumber: make(map[string]string),
		replays:  make(map[string]replay),
		payments: make(map[string]api.PaymentStatus),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}

	r := gin.New()
	r.Use(requestLogger(logger), gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group(BasePath)
	v1.POST("/orders", s.createOrder)
	v1.GET("/orders", s.listOrders)
	v1.GET("/orders/:id", s.getOrder)
	v1.GET("/orders/number/:orderNumber", s.getOrderByNumber)
	v1.POST("/orders/:id/analyze-risk", s.analyzeRisk)
	v1.GET("/payments/:paymentId/status", s.paymentStatus)
	v1.POST("/payments/orders/:orderId/refresh-status", s.refreshPaymentStatus)

	s.engine = r
	return s
}

// Handler exposes the router, e.g. for httptest
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Sandbox listening", map[string]interface{}{"addr": addr, "basePath": BasePath})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("sandbox shutdown: %w", err)
		}
		return nil
	}
}

// SetPaymentStatus changes what the payment gateway reports for paymentID.
// Orders pick the change up on their next refresh.
func (s *Server) SetPaymentStatus(paymentID string, status api.PaymentStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[paymentID]; !ok {
		return false
	}
	s.payments[paymentID] = status
	return true
}

func requestLogger(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("Sandbox request", map[string]interface{}{
			"method":    c.Request.Method,
			"path":      c.Request.URL.Path,
			"status":    c.Writer.Status(),
			"latency":   time.Since(start).String(),
			"requestId": c.GetHeader(api.RequestIDHeader),
		})
	}
}

func (s *Server) errorResponse(c *gin.Context, status int, message string, details map[string]string) {
	c.JSON(status, api.ErrorResponse{
		Timestamp: api.NewTimestamp(s.now()),
		Status:    status,
		Error:     http.StatusText(status),
		Message:   message,
		Details:   details,
	})
}

func (s *Server) createOrder(c *gin.Context) {
	var req api.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Malformed JSON request", nil)
		return
	}

	key := c.GetHeader(api.IdempotencyHeader)
	if key == "" {
		key = req.IdempotencyKey
	}

	if err := api.Validator().Struct(req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "Validation failed", api.FieldErrors(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if key != "" {
		if prev, ok := s.replays[key]; ok {
			c.JSON(prev.status, prev.body)
			return
		}
	}

	status, body := s.runSaga(req)
	if key != "" {
		s.replays[key] = replay{status: status, body: body}
	}
	c.JSON(status, body)
}

// runSaga persists the order and settles its payment. Callers hold s.mu.
func (s *Server) runSaga(req api.CreateOrderRequest) (int, api.CreateOrderResponse) {
	s.seq++
	now := api.NewTimestamp(s.now())
	order := &api.Order{
		ID:            uuid.NewString(),
		OrderNumber:   fmt.Sprintf("ORD-%010d", s.seq),
		Status:        api.StatusPending,
		CustomerID:    req.CustomerID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Items:         make([]api.OrderItem, 0, len(req.Items)),
		PaymentID:     "pay_" + uuid.NewString(),
		RiskLevel:     api.RiskPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, item := range req.Items {
		line := api.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   api.RoundMoney(item.UnitPrice),
		}
		line.Subtotal = line.ComputedSubtotal()
		order.Items = append(order.Items, line)
	}
	order.TotalAmount = order.ComputedTotal()

	s.orders[order.ID] = order
	s.byNumber[order.OrderNumber] = order.ID
	sagaID := uuid.NewString()

	switch req.PaymentMethod {
	case MethodDeclined:
		order.Status = api.StatusPaymentFailed
		s.payments[order.PaymentID] = api.PaymentFailed
		snapshot := cloneOrder(order)
		return http.StatusBadRequest, api.CreateOrderResponse{
			Success:         false,
			Order:           &snapshot,
			SagaExecutionID: sagaID,
			ErrorMessage:    MsgPaymentDeclined,
		}
	case MethodAsync:
		s.payments[order.PaymentID] = api.PaymentPending
		return http.StatusAccepted, api.CreateOrderResponse{
			InProgress:      true,
			SagaExecutionID: sagaID,
			ErrorMessage:    api.MsgSagaInProgress,
		}
	default:
		order.Status = api.StatusPaid
		order.RiskLevel = assessRisk(order.TotalAmount)
		s.payments[order.PaymentID] = api.PaymentSuccess
		snapshot := cloneOrder(order)
		return http.StatusCreated, api.CreateOrderResponse{
			Success:         true,
			Order:           &snapshot,
			SagaExecutionID: sagaID,
		}
	}
}

func (s *Server) listOrders(c *gin.Context) {
	status, err := api.ParseStatus(c.Query("status"))
	if err != nil {
		s.errorResponse(c, http.StatusBadRequest, err.Error(), map[string]string{"status": "must be one of the known order statuses"})
		return
	}

	s.mu.Lock()
	out := make([]api.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			out = append(out, cloneOrder(o))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderNumber > out[j].OrderNumber
	})
	c.JSON(http.StatusOK, out)
}

func (s *Server) getOrder(c *gin.Context) {
	s.mu.Lock()
	o, ok := s.orders[c.Param("id")]
	var snapshot api.Order
	if ok {
		snapshot = cloneOrder(o)
	}
	s.mu.Unlock()

	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) getOrderByNumber(c *gin.Context) {
	s.mu.Lock()
	var snapshot api.Order
	id, ok := s.byNumber[c.Param("orderNumber")]
	if ok {
		snapshot = cloneOrder(s.orders[id])
	}
	s.mu.Unlock()

	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) analyzeRisk(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[c.Param("id")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	if level := assessRisk(o.TotalAmount); level != o.RiskLevel {
		o.RiskLevel = level
		o.UpdatedAt = api.NewTimestamp(s.now())
	}
	c.JSON(http.StatusOK, cloneOrder(o))
}

func (s *Server) paymentStatus(c *gin.Context) {
	paymentID := c.Param("paymentId")

	s.mu.Lock()
	status, ok := s.payments[paymentID]
	s.mu.Unlock()

	if !ok {
		s.errorResponse(c, http.StatusNotFound, "Payment not found", nil)
		return
	}
	c.JSON(http.StatusOK, api.PaymentStatusResponse{PaymentID: paymentID, Status: status})
}

// refreshPaymentStatus applies the gateway's payment status to the order when
// the lifecycle allows it. Repeating the call without a gateway change is a no-op.
func (s *Server) refreshPaymentStatus(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[c.Param("orderId")]
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	if next, ok := orderStatusFor(s.payments[o.PaymentID]); ok && o.Status.CanTransitionTo(next) {
		o.Status = next
		if next == api.StatusPaid {
			o.RiskLevel = assessRisk(o.TotalAmount)
		}
		o.UpdatedAt = api.NewTimestamp(s.now())
	}
	c.JSON(http.StatusOK, cloneOrder(o))
}

func orderStatusFor(p api.PaymentStatus) (api.OrderStatus, bool) {
	switch p {
	case api.PaymentSuccess:
		return api.StatusPaid, true
	case api.PaymentFailed:
		return api.StatusPaymentFailed, true
	case api.PaymentRefunded, api.PaymentCancelled:
		return api.StatusCanceled, true
	default:
		return "", false
	}
}

func assessRisk(total decimal.Decimal) api.RiskLevel {
	if total.GreaterThan(HighRiskThreshold) {
		return api.RiskHigh
	}
	return api.RiskLow
}

func cloneOrder(o *api.Order) api.Order {
	c := *o
	c.Items = append([]api.OrderItem(nil), o.Items...)
	return c
}
