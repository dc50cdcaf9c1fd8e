package api

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-saga-client/internal/apierr"
	"order-saga-client/internal/idempotency"
)

func sampleRequest() CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID:    "0b6f5a53-8a4f-4f43-9a53-2f6a7d1c2e10",
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		Items: []OrderItemRequest{{
			ProductID:   "5d1c9f0e-3b2a-4c6d-8e7f-9a0b1c2d3e4f",
			ProductName: "Keyboard",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("49.90"),
		}},
		PaymentMethod:  "PIX",
		IdempotencyKey: idempotency.Generate(),
	}
}

func TestValidateCreateOrderAcceptsValidRequest(t *testing.T) {
	assert.NoError(t, ValidateCreateOrder(sampleRequest()))

	noKey := sampleRequest()
	noKey.IdempotencyKey = ""
	noKey.Currency = "BRL"
	assert.NoError(t, ValidateCreateOrder(noKey))
}

func TestValidateCreateOrderFieldKeys(t *testing.T) {
	req := sampleRequest()
	req.CustomerEmail = "not-an-email"
	req.Items = append(req.Items, OrderItemRequest{
		ProductID:   "5d1c9f0e-3b2a-4c6d-8e7f-9a0b1c2d3e40",
		ProductName: "Mouse",
		Quantity:    0,
		UnitPrice:   decimal.Zero,
	})

	err := ValidateCreateOrder(req)
	require.Error(t, err)

	var verr *apierr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, map[string]string{
		"customerEmail":      "must be a valid email address",
		"items[1].quantity":  "must be at least 1",
		"items[1].unitPrice": "must be greater than zero",
	}, verr.Fields)
	assert.True(t, strings.HasPrefix(verr.Message, "Validation failed on 3 field(s)"))
}

func TestValidateCreateOrderMissingFields(t *testing.T) {
	err := ValidateCreateOrder(CreateOrderRequest{Items: []OrderItemRequest{}})

	var verr *apierr.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"customerId", "customerName", "customerEmail", "items", "paymentMethod"} {
		assert.Contains(t, verr.Fields, field)
	}
	assert.Equal(t, "must contain at least 1 item(s)", verr.Fields["items"])
}

func TestValidateCreateOrderIdempotencyKey(t *testing.T) {
	req := sampleRequest()
	req.IdempotencyKey = "123"

	err := ValidateCreateOrder(req)
	var verr *apierr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, idempotency.ErrInvalidKey.Error(), verr.Message)
	assert.Equal(t, map[string]string{"idempotencyKey": "must be a UUID v4"}, verr.Fields)
}

func TestValidateCreateOrderCurrency(t *testing.T) {
	req := sampleRequest()
	req.Currency = "REAL"

	err := ValidateCreateOrder(req)
	var verr *apierr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "must be exactly 3 characters", verr.Fields["currency"])
}

func TestFieldErrorsNonValidationError(t *testing.T) {
	assert.Equal(t, map[string]string{"request": "boom"}, FieldErrors(errors.New("boom")))
}
