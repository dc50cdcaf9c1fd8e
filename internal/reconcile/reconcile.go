package reconcile

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"order-saga-client/internal/api"
	"order-saga-client/internal/apierr"
	"order-saga-client/internal/utils"
)

// OutstandingStatuses are the statuses a payment refresh can still move
var OutstandingStatuses = []api.OrderStatus{api.StatusPending, api.StatusPaymentFailed}

// Gateway is the subset of the order backend the reconciler needs
type Gateway interface {
	ListOrdersByStatuses(ctx context.Context, statuses ...api.OrderStatus) ([]api.Order, error)
	RefreshPaymentStatus(ctx context.Context, orderID string) (*api.Order, error)
}

// Change is an order whose status moved during reconciliation
type Change struct {
	OrderID     string          `json:"orderId"`
	OrderNumber string          `json:"orderNumber"`
	From        api.OrderStatus `json:"from"`
	To          api.OrderStatus `json:"to"`
}

// Result summarizes one reconciliation run
type Result struct {
	Source    string            `json:"source"`
	Total     int               `json:"total"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Orders    []api.Order       `json:"orders"`
	Changes   []Change          `json:"changes"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Reconciler refreshes the payment status of outstanding orders in bulk
type Reconciler struct {
	gateway     Gateway
	logger      *utils.Logger
	concurrency int
}

// NewReconciler creates a reconciler that runs at most concurrency refreshes at once
func NewReconciler(gateway Gateway, logger *utils.Logger, concurrency int) *Reconciler {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Reconciler{
		gateway:     gateway,
		logger:      logger,
		concurrency: concurrency,
	}
}

type target struct {
	id     string
	number string
	status api.OrderStatus
}

// ReconcileOutstanding refreshes every PENDING and PAYMENT_FAILED order
func (r *Reconciler) ReconcileOutstanding(ctx context.Context) (*Result, error) {
	orders, err := r.gateway.ListOrdersByStatuses(ctx, OutstandingStatuses...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outstanding orders: %w", err)
	}

	targets := make([]target, 0, len(orders))
	for _, o := range orders {
		targets = append(targets, target{id: o.ID, number: o.OrderNumber, status: o.Status})
	}
	return r.run(ctx, "outstanding", targets)
}

// ReconcileJournal refreshes every order recorded in the journal at path
func (r *Reconciler) ReconcileJournal(ctx context.Context, path string) (*Result, error) {
	entries, err := utils.ReadJournal(path)
	if err != nil {
		return nil, err
	}

	numbers := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.OrderID != "" && e.OrderNumber != "" {
			numbers[e.OrderID] = e.OrderNumber
		}
	}

	ids := utils.JournalOrderIDs(entries)
	targets := make([]target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, target{id: id, number: numbers[id]})
	}
	return r.run(ctx, path, targets)
}

// ReconcileLatestJournal reconciles the newest journal under dir
func (r *Reconciler) ReconcileLatestJournal(ctx context.Context, dir string) (*Result, error) {
	path, err := utils.LatestJournal(dir)
	if err != nil {
		return nil, err
	}
	return r.ReconcileJournal(ctx, path)
}

func (r *Reconciler) run(ctx context.Context, source string, targets []target) (*Result, error) {
	r.logger.Info("Starting reconciliation", map[string]interface{}{
		"source":      source,
		"totalOrders": len(targets),
		"concurrency": r.concurrency,
	})

	refreshed := make([]*api.Order, len(targets))
	failures := make([]error, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range targets {
		g.Go(func() error {
			// a cancelled run stops scheduling, individual failures do not
			if err := ctx.Err(); err != nil {
				failures[i] = err
				return nil
			}
			order, err := r.gateway.RefreshPaymentStatus(gctx, t.id)
			if err != nil {
				failures[i] = err
				r.logger.Error("Failed to refresh order", map[string]interface{}{
					"orderID":  t.id,
					"progress": fmt.Sprintf("%d/%d", i+1, len(targets)),
					"error":    err.Error(),
				})
				return nil
			}
			refreshed[i] = order
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{
		Source:  source,
		Total:   len(targets),
		Orders:  []api.Order{},
		Changes: []Change{},
	}
	for i, t := range targets {
		if failures[i] != nil {
			result.Failed++
			if result.Errors == nil {
				result.Errors = make(map[string]string)
			}
			result.Errors[t.id] = apierr.Normalize(failures[i]).Message
			continue
		}
		order := refreshed[i]
		result.Succeeded++
		result.Orders = append(result.Orders, *order)
		if t.status != "" && order.Status != t.status {
			result.Changes = append(result.Changes, Change{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				From:        t.status,
				To:          order.Status,
			})
		}
	}

	r.logger.Info("Reconciliation complete", map[string]interface{}{
		"source":  source,
		"total":   result.Total,
		"success": result.Succeeded,
		"failed":  result.Failed,
		"changed": len(result.Changes),
	})

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
