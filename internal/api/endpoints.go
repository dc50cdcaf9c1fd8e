package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"order-saga-client/internal/apierr"
)

// fail normalizes err exactly once and counts its kind
func (c *Client) fail(err error) error {
	n := apierr.Normalize(err)
	c.metrics.RecordErrorKind(n.Kind())
	return n
}

// CreateOrder validates req, submits it and classifies the saga result.
// InProgress and Failed are outcomes, not errors. Errors are *apierr.APIError.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Outcome, error) {
	if err := ValidateCreateOrder(req); err != nil {
		return Outcome{}, c.fail(err)
	}

	header := http.Header{}
	if req.IdempotencyKey != "" {
		header.Set(IdempotencyHeader, req.IdempotencyKey)
	}

	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		route:  "POST /orders",
		path:   "/orders",
		body:   req,
		header: header,
	})
	if err != nil {
		if outcome, ok := reinterpretRejected(err); ok {
			c.recordOutcome(outcome)
			return outcome, nil
		}
		return Outcome{}, c.fail(err)
	}

	var body CreateOrderResponse
	if len(resp.Body) > 0 {
		if err := decode(resp, &body); err != nil {
			return Outcome{}, c.fail(err)
		}
	}

	outcome, err := ClassifyCreateOrder(resp.Status, body)
	if err != nil {
		return Outcome{}, c.fail(err)
	}
	c.recordOutcome(outcome)
	return outcome, nil
}

func (c *Client) recordOutcome(o Outcome) {
	c.metrics.RecordOutcome(string(o.Kind))
	fields := map[string]interface{}{
		"outcome":         string(o.Kind),
		"sagaExecutionId": o.SagaExecutionID,
		"httpStatus":      o.HTTPStatus,
	}
	if o.Order != nil {
		fields["orderId"] = o.Order.ID
		fields["orderNumber"] = o.Order.OrderNumber
	}
	c.logger.Info("Create order classified", fields)
}

// GetOrderByID fetches one order
func (c *Client) GetOrderByID(ctx context.Context, id string) (*Order, error) {
	if id == "" {
		return nil, c.fail(apierr.Rejected("order id is required"))
	}
	return c.getOrder(ctx, "GET /orders/{id}", "/orders/"+url.PathEscape(id))
}

// GetOrderByNumber fetches one order by its human-readable number
func (c *Client) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	if number == "" {
		return nil, c.fail(apierr.Rejected("order number is required"))
	}
	return c.getOrder(ctx, "GET /orders/number/{orderNumber}", "/orders/number/"+url.PathEscape(number))
}

func (c *Client) getOrder(ctx context.Context, route, path string) (*Order, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, route: route, path: path})
	if err != nil {
		return nil, c.fail(err)
	}

	var order Order
	if err := decode(resp, &order); err != nil {
		return nil, c.fail(err)
	}
	return &order, nil
}

// ListOrders returns orders with the given status, or all orders when status
// is empty. The result is never nil.
func (c *Client) ListOrders(ctx context.Context, status OrderStatus) ([]Order, error) {
	var query url.Values
	if status != "" {
		query = url.Values{"status": []string{string(status)}}
	}

	resp, err := c.do(ctx, request{method: http.MethodGet, route: "GET /orders", path: "/orders", query: query})
	if err != nil {
		return nil, c.fail(err)
	}

	var orders []Order
	if len(resp.Body) > 0 {
		if err := decode(resp, &orders); err != nil {
			return nil, c.fail(err)
		}
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// ListOrdersByStatuses lists several statuses concurrently and merges the
// results in status order, dropping duplicate IDs.
func (c *Client) ListOrdersByStatuses(ctx context.Context, statuses ...OrderStatus) ([]Order, error) {
	if len(statuses) == 0 {
		return c.ListOrders(ctx, "")
	}

	results := make([][]Order, len(statuses))
	g, gctx := errgroup.WithContext(ctx)
	for i, status := range statuses {
		g.Go(func() error {
			orders, err := c.ListOrders(gctx, status)
			if err != nil {
				return err
			}
			results[i] = orders
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	merged := []Order{}
	for _, orders := range results {
		for _, o := range orders {
			if _, dup := seen[o.ID]; dup {
				continue
			}
			seen[o.ID] = struct{}{}
			merged = append(merged, o)
		}
	}
	return merged, nil
}

// RefreshPaymentStatus asks the backend to re-check the order's payment with
// the gateway and returns the resulting order snapshot
func (c *Client) RefreshPaymentStatus(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, c.fail(apierr.Rejected("order id is required"))
	}
	return c.postOrder(ctx, "POST /payments/orders/{id}/refresh-status",
		fmt.Sprintf("/payments/orders/%s/refresh-status", url.PathEscape(orderID)))
}

// AnalyzeRisk triggers a manual risk analysis of the order
func (c *Client) AnalyzeRisk(ctx context.Context, orderID string) (*Order, error) {
	if orderID == "" {
		return nil, c.fail(apierr.Rejected("order id is required"))
	}
	return c.postOrder(ctx, "POST /orders/{id}/analyze-risk",
		fmt.Sprintf("/orders/%s/analyze-risk", url.PathEscape(orderID)))
}

func (c *Client) postOrder(ctx context.Context, route, path string) (*Order, error) {
	resp, err := c.do(ctx, request{method: http.MethodPost, route: route, path: path})
	if err != nil {
		return nil, c.fail(err)
	}

	var order Order
	if err := decode(resp, &order); err != nil {
		return nil, c.fail(err)
	}
	return &order, nil
}

// CheckPaymentStatus reads the payment provider status of a payment
func (c *Client) CheckPaymentStatus(ctx context.Context, paymentID string) (*PaymentStatusResponse, error) {
	if paymentID == "" {
		return nil, c.fail(apierr.Rejected("payment id is required"))
	}

	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		route:  "GET /payments/{paymentId}/status",
		path:   fmt.Sprintf("/payments/%s/status", url.PathEscape(paymentID)),
	})
	if err != nil {
		return nil, c.fail(err)
	}

	var status PaymentStatusResponse
	if err := decode(resp, &status); err != nil {
		return nil, c.fail(err)
	}
	return &status, nil
}
