package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// the backend reads and writes money as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// OrderStatus is the lifecycle status of an order
type OrderStatus string

const (
	StatusPending       OrderStatus = "PENDING"
	StatusPaid          OrderStatus = "PAID"
	StatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
	StatusCanceled      OrderStatus = "CANCELED"
)

// AllStatuses lists every order status in lifecycle order
var AllStatuses = []OrderStatus{StatusPending, StatusPaid, StatusPaymentFailed, StatusCanceled}

var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:       {StatusPaid, StatusPaymentFailed, StatusCanceled},
	StatusPaymentFailed: {StatusCanceled},
}

// Valid reports whether s is a known status
func (s OrderStatus) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the backend allows moving from s to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible
func (s OrderStatus) Terminal() bool {
	return len(statusTransitions[s]) == 0
}

// ParseStatus converts user input into an OrderStatus. Empty input means no filter.
func ParseStatus(v string) (OrderStatus, error) {
	if v == "" {
		return "", nil
	}
	s := OrderStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", v)
	}
	return s, nil
}

// RiskLevel is the fraud-risk classification of an order
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskHigh    RiskLevel = "HIGH"
	RiskPending RiskLevel = "PENDING"
)

// PaymentStatus is the payment provider's view of a payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSuccess   PaymentStatus = "SUCCESS"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

// RoundMoney rounds an amount to cents, half away from zero
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// OrderItem is a line of an order
type OrderItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ComputedSubtotal is quantity times unit price, rounded to cents
func (i OrderItem) ComputedSubtotal() decimal.Decimal {
	return RoundMoney(i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))))
}

// Order is the backend's order representation
type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Status        OrderStatus     `json:"status"`
	CustomerID    string          `json:"customerId"`
	CustomerName  string          `json:"customerName"`
	CustomerEmail string          `json:"customerEmail"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PaymentID     string          `json:"paymentId,omitempty"`
	RiskLevel     RiskLevel       `json:"riskLevel,omitempty"`
	CreatedAt     Timestamp       `json:"createdAt"`
	UpdatedAt     Timestamp       `json:"updatedAt"`
}

// ComputedTotal sums the item subtotals
func (o Order) ComputedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.ComputedSubtotal())
	}
	return RoundMoney(total)
}

// Consistent reports whether the order has items and its amounts add up
func (o Order) Consistent() bool {
	if len(o.Items) == 0 {
		return false
	}
	for _, item := range o.Items {
		if item.Quantity < 1 || !item.UnitPrice.IsPositive() {
			return false
		}
		if !item.Subtotal.Equal(item.ComputedSubtotal()) {
			return false
		}
	}
	return o.TotalAmount.Equal(o.ComputedTotal())
}

const localDateTimeLayout = "2006-01-02T15:04:05.999999999"

// Timestamp accepts RFC3339 and zone-less local date-times, which are read as UTC
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(localDateTimeLayout, s, time.UTC)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// OrderItemRequest is an item in a create-order request
type OrderItemRequest struct {
	ProductID   string          `json:"productId" validate:"required,uuid"`
	ProductName string          `json:"productName" validate:"required"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// CreateOrderRequest is the body of POST /orders
type CreateOrderRequest struct {
	CustomerID     string             `json:"customerId" validate:"required,uuid"`
	CustomerName   string             `json:"customerName" validate:"required,max=255"`
	CustomerEmail  string             `json:"customerEmail" validate:"required,email"`
	Items          []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
	PaymentMethod  string             `json:"paymentMethod" validate:"required"`
	Currency       string             `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	IdempotencyKey string             `json:"idempotencyKey,omitempty" validate:"omitempty,idempotency_key"`
}

// Total is the amount the backend is expected to charge
func (r CreateOrderRequest) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(RoundMoney(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))))
	}
	return RoundMoney(total)
}

// CreateOrderResponse is the saga outcome body returned with 201, 202 or 400
type CreateOrderResponse struct {
	Success         bool   `json:"success"`
	InProgress      bool   `json:"inProgress"`
	Order           *Order `json:"order,omitempty"`
	SagaExecutionID string `json:"sagaExecutionId,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// PaymentStatusResponse is the body of GET /payments/{paymentId}/status
type PaymentStatusResponse struct {
	PaymentID string        `json:"paymentId"`
	Status    PaymentStatus `json:"status"`
}

// ErrorResponse is the backend's error body
type ErrorResponse struct {
	Timestamp Timestamp         `json:"timestamp"`
	Status    int               `json:"status"`
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
}
