package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusPending.CanTransitionTo(StatusPaid))
	assert.True(t, StatusPending.CanTransitionTo(StatusPaymentFailed))
	assert.True(t, StatusPending.CanTransitionTo(StatusCanceled))
	assert.True(t, StatusPaymentFailed.CanTransitionTo(StatusCanceled))

	assert.False(t, StatusPaymentFailed.CanTransitionTo(StatusPaid))
	assert.False(t, StatusPaid.CanTransitionTo(StatusCanceled))
	assert.False(t, StatusCanceled.CanTransitionTo(StatusPending))

	assert.True(t, StatusPaid.Terminal())
	assert.True(t, StatusCanceled.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, OrderStatus(""), s)

	s, err = ParseStatus("PAYMENT_FAILED")
	require.NoError(t, err)
	assert.Equal(t, StatusPaymentFailed, s)

	_, err = ParseStatus("SHIPPED")
	assert.Error(t, err)
}

func TestOrderTotals(t *testing.T) {
	order := Order{
		Items: []OrderItem{
			{Quantity: 3, UnitPrice: decimal.RequireFromString("0.335"), Subtotal: decimal.RequireFromString("1.01")},
			{Quantity: 2, UnitPrice: decimal.RequireFromString("49.90"), Subtotal: decimal.RequireFromString("99.80")},
		},
		TotalAmount: decimal.RequireFromString("100.81"),
	}

	// 3 * 0.335 = 1.005, rounded half away from zero
	assert.Equal(t, "1.01", order.Items[0].ComputedSubtotal().StringFixed(2))
	assert.Equal(t, "100.81", order.ComputedTotal().StringFixed(2))
	assert.True(t, order.Consistent())

	order.TotalAmount = decimal.RequireFromString("100.80")
	assert.False(t, order.Consistent())

	assert.False(t, Order{}.Consistent())
}

func TestRequestTotal(t *testing.T) {
	req := CreateOrderRequest{Items: []OrderItemRequest{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("10.005")},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("5")},
	}}
	assert.Equal(t, "25.01", req.Total().StringFixed(2))
}

func TestOrderJSON(t *testing.T) {
	raw := `{
		"id":"7c0a1f52-1d7e-4b8e-9d3c-5a2b1c0d9e8f","orderNumber":"ORD-0000000001","status":"PAID",
		"customerId":"0b6f5a53-8a4f-4f43-9a53-2f6a7d1c2e10","customerName":"Ada","customerEmail":"ada@example.com",
		"items":[{"productId":"p","productName":"Keyboard","quantity":2,"unitPrice":49.90,"subtotal":99.80}],
		"totalAmount":99.80,"paymentId":null,"riskLevel":"LOW",
		"createdAt":"2024-05-01T10:15:30.123456","updatedAt":"2024-05-01T10:15:31Z"}`

	var order Order
	require.NoError(t, json.Unmarshal([]byte(raw), &order))

	assert.Equal(t, StatusPaid, order.Status)
	assert.Equal(t, RiskLow, order.RiskLevel)
	assert.Empty(t, order.PaymentID)
	assert.True(t, order.Consistent())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 30, 123456000, time.UTC), order.CreatedAt.Time)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 15, 31, 0, time.UTC), order.UpdatedAt.Time.UTC())

	out, err := json.Marshal(order.Items[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"unitPrice":49.9`)
}

func TestTimestampEdgeCases(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	require.NoError(t, json.Unmarshal([]byte(`"2024-01-02T03:04:05"`), &ts))
	assert.Equal(t, 2024, ts.Year())

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`12`), &ts))

	out, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(out))
}
