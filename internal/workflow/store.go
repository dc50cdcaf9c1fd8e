package workflow

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"

	"order-saga-client/internal/api"
	"order-saga-client/internal/apierr"
	"order-saga-client/internal/utils"
)

// LoadingState is the store's request lifecycle
type LoadingState string

const (
	Idle    LoadingState = "idle"
	Loading LoadingState = "loading"
	Success LoadingState = "success"
	Failure LoadingState = "error"
)

// Messages recorded by store actions
const (
	MsgOrderNumberRequired = "Enter an order number to search."
	MsgOrderNotFound       = "Order not found. Check the number and try again."
)

// Gateway is the subset of the order client the store drives
type Gateway interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (api.Outcome, error)
	GetOrderByID(ctx context.Context, id string) (*api.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*api.Order, error)
	ListOrders(ctx context.Context, status api.OrderStatus) ([]api.Order, error)
	RefreshPaymentStatus(ctx context.Context, orderID string) (*api.Order, error)
	AnalyzeRisk(ctx context.Context, orderID string) (*api.Order, error)
}

// Journal receives one entry per create-order submission
type Journal interface {
	Record(entry utils.JournalEntry) error
}

// State is the observable workflow state
type State struct {
	Orders              []api.Order       `json:"orders"`
	CurrentOrder        *api.Order        `json:"currentOrder,omitempty"`
	FailedPaymentOrders []api.Order       `json:"failedPaymentOrders"`
	Loading             LoadingState      `json:"loading"`
	Error               *apierr.APIError  `json:"error,omitempty"`
	ValidationErrors    map[string]string `json:"validationErrors,omitempty"`
	LastOutcome         *api.Outcome      `json:"lastOutcome,omitempty"`
}

// Store holds workflow state. Actions may overlap; each applies its result
// when its response arrives, so the last response to resolve wins.
type Store struct {
	mu      sync.RWMutex
	state   State
	gateway Gateway
	logger  *utils.Logger
	journal Journal
}

// Option customizes a Store
type Option func(*Store)

// WithLogger sets the store logger
func WithLogger(l *utils.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithJournal records every create-order submission
func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

// NewStore creates an idle store with empty collections
func NewStore(g Gateway, opts ...Option) *Store {
	s := &Store{
		gateway: g,
		logger:  utils.NewNopLogger(),
		state: State{
			Orders:              []api.Order{},
			FailedPaymentOrders: []api.Order{},
			Loading:             Idle,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

// begin enters the loading state and clears the previous error
func (s *Store) begin(action string, extra func(st *State)) {
	s.update(func(st *State) {
		st.Loading = Loading
		st.Error = nil
		st.ValidationErrors = nil
		if extra != nil {
			extra(st)
		}
	})
	s.logger.Debug("Workflow action started", map[string]interface{}{"action": action})
}

// fail records a normalized error and enters the error state
func (s *Store) fail(action string, err error) *apierr.APIError {
	n := apierr.Normalize(err)
	s.update(func(st *State) {
		st.Loading = Failure
		st.Error = n
		st.ValidationErrors = copyDetails(n.Details)
	})
	s.logger.Warn("Workflow action failed", map[string]interface{}{
		"action": action,
		"kind":   n.Kind(),
		"status": n.Status,
		"error":  n.Message,
	})
	return n
}

// FetchOrders loads orders, filtered by status when it is non-empty
func (s *Store) FetchOrders(ctx context.Context, status api.OrderStatus) error {
	s.begin("fetchOrders", nil)

	orders, err := s.gateway.ListOrders(ctx, status)
	if err != nil {
		return s.fail("fetchOrders", err)
	}

	s.update(func(st *State) {
		st.Orders = orders
		st.Loading = Success
	})
	return nil
}

// FetchOrderByID loads one order into CurrentOrder, clearing it first
func (s *Store) FetchOrderByID(ctx context.Context, id string) error {
	s.begin("fetchOrderById", func(st *State) { st.CurrentOrder = nil })

	order, err := s.gateway.GetOrderByID(ctx, id)
	if err != nil {
		return s.fail("fetchOrderById", err)
	}

	s.update(func(st *State) {
		st.CurrentOrder = order
		st.Loading = Success
	})
	return nil
}

// SearchByNumber looks up an order by number. Blank input is rejected
// locally and a 404 becomes a friendly not-found message.
func (s *Store) SearchByNumber(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return s.fail("searchByNumber", apierr.Rejected(MsgOrderNumberRequired))
	}

	s.begin("searchByNumber", func(st *State) { st.CurrentOrder = nil })

	order, err := s.gateway.GetOrderByNumber(ctx, number)
	if err != nil {
		n := apierr.Normalize(err)
		if n.Status == http.StatusNotFound {
			notFound := *n
			notFound.Message = MsgOrderNotFound
			n = &notFound
		}
		return s.fail("searchByNumber", n)
	}

	s.update(func(st *State) {
		st.CurrentOrder = order
		st.Loading = Success
	})
	return nil
}

// FetchFailedPaymentOrders loads the orders awaiting payment recovery
func (s *Store) FetchFailedPaymentOrders(ctx context.Context) error {
	s.begin("fetchFailedPaymentOrders", nil)

	orders, err := s.gateway.ListOrders(ctx, api.StatusPaymentFailed)
	if err != nil {
		return s.fail("fetchFailedPaymentOrders", err)
	}

	s.update(func(st *State) {
		st.FailedPaymentOrders = orders
		st.Loading = Success
	})
	return nil
}

// CreateOrder submits req and moves the store according to the outcome.
// InProgress ends in success with an informational 202 error. Failed ends
// in error with a 400 business error. Only transport and validation
// failures are returned as errors.
func (s *Store) CreateOrder(ctx context.Context, req api.CreateOrderRequest) (api.Outcome, error) {
	s.begin("createOrder", nil)

	outcome, err := s.gateway.CreateOrder(ctx, req)
	if err != nil {
		n := s.fail("createOrder", err)
		s.record(req, api.Outcome{}, n)
		return api.Outcome{}, n
	}

	s.update(func(st *State) {
		o := outcome
		st.LastOutcome = &o

		switch outcome.Kind {
		case api.OutcomeCompleted:
			st.Orders = prependOrder(st.Orders, *outcome.Order)
			st.CurrentOrder = outcome.Order
			st.Loading = Success

		case api.OutcomeInProgress:
			st.Loading = Success
			st.Error = apierr.InProgress(outcome.Message)

		case api.OutcomeFailed:
			st.Loading = Failure
			st.Error = apierr.SagaFailed(outcome.Message)
			if outcome.Order != nil {
				st.FailedPaymentOrders = prependOrder(st.FailedPaymentOrders, *outcome.Order)
			}
		}
	})

	s.logger.Info("Order submission finished", map[string]interface{}{
		"outcome":         string(outcome.Kind),
		"sagaExecutionId": outcome.SagaExecutionID,
	})
	s.record(req, outcome, nil)
	return outcome, nil
}

func (s *Store) record(req api.CreateOrderRequest, outcome api.Outcome, failure *apierr.APIError) {
	if s.journal == nil {
		return
	}

	entry := utils.JournalEntry{
		IdempotencyKey:  req.IdempotencyKey,
		Outcome:         string(outcome.Kind),
		SagaExecutionID: outcome.SagaExecutionID,
		Message:         outcome.Message,
	}
	if outcome.Order != nil {
		entry.OrderID = outcome.Order.ID
		entry.OrderNumber = outcome.Order.OrderNumber
	}
	if failure != nil {
		entry.Outcome = "Error"
		entry.Message = failure.Message
	}

	if err := s.journal.Record(entry); err != nil {
		s.logger.Warn("Failed to journal submission", map[string]interface{}{"error": err.Error()})
	}
}

// RefreshPaymentStatus re-checks one order's payment. It leaves Loading
// untouched and keeps existing data when the call fails.
func (s *Store) RefreshPaymentStatus(ctx context.Context, orderID string) (*api.Order, error) {
	return s.applyOrderUpdate(ctx, "refreshPaymentStatus", orderID, s.gateway.RefreshPaymentStatus)
}

// AnalyzeRisk re-runs risk analysis for one order, with the same state rules as RefreshPaymentStatus
func (s *Store) AnalyzeRisk(ctx context.Context, orderID string) (*api.Order, error) {
	return s.applyOrderUpdate(ctx, "analyzeRisk", orderID, s.gateway.AnalyzeRisk)
}

func (s *Store) applyOrderUpdate(
	ctx context.Context,
	action, orderID string,
	call func(context.Context, string) (*api.Order, error),
) (*api.Order, error) {
	updated, err := call(ctx, orderID)
	if err != nil {
		n := apierr.Normalize(err)
		s.update(func(st *State) { st.Error = n })
		s.logger.Warn("Workflow action failed", map[string]interface{}{
			"action":  action,
			"orderId": orderID,
			"kind":    n.Kind(),
		})
		return nil, n
	}

	s.update(func(st *State) {
		st.Orders = replaceOrder(st.Orders, *updated)
		if st.CurrentOrder != nil && st.CurrentOrder.ID == updated.ID {
			st.CurrentOrder = updated
		}
		if updated.Status == api.StatusPaymentFailed {
			st.FailedPaymentOrders = replaceOrder(st.FailedPaymentOrders, *updated)
		} else {
			st.FailedPaymentOrders = removeOrder(st.FailedPaymentOrders, updated.ID)
		}
	})
	s.logger.Info("Order updated", map[string]interface{}{
		"action":  action,
		"orderId": updated.ID,
		"status":  string(updated.Status),
	})
	return updated, nil
}

// ClearError drops the current error and validation messages
func (s *Store) ClearError() {
	s.update(func(st *State) {
		st.Error = nil
		st.ValidationErrors = nil
	})
}

// ClearCurrentOrder drops the selected order
func (s *Store) ClearCurrentOrder() {
	s.update(func(st *State) { st.CurrentOrder = nil })
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.state
	out.Orders = append([]api.Order{}, s.state.Orders...)
	out.FailedPaymentOrders = append([]api.Order{}, s.state.FailedPaymentOrders...)
	out.ValidationErrors = copyDetails(s.state.ValidationErrors)
	if s.state.CurrentOrder != nil {
		current := *s.state.CurrentOrder
		out.CurrentOrder = &current
	}
	return out
}

// Dashboard summarizes the loaded orders
type Dashboard struct {
	Total         int         `json:"total"`
	Paid          int         `json:"paid"`
	Pending       int         `json:"pending"`
	PaymentFailed int         `json:"paymentFailed"`
	Canceled      int         `json:"canceled"`
	HighRisk      int         `json:"highRisk"`
	Recent        []api.Order `json:"recent"`
}

// RecentLimit is the number of orders shown as recent on the dashboard
const RecentLimit = 5

// Dashboard computes counts over the loaded orders and the most recent ones
func (s *Store) Dashboard() Dashboard {
	orders := s.Snapshot().Orders

	d := Dashboard{Total: len(orders)}
	for _, o := range orders {
		switch o.Status {
		case api.StatusPaid:
			d.Paid++
		case api.StatusPending:
			d.Pending++
		case api.StatusPaymentFailed:
			d.PaymentFailed++
		case api.StatusCanceled:
			d.Canceled++
		}
		if o.RiskLevel == api.RiskHigh {
			d.HighRisk++
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt.Time)
	})
	d.Recent = orders[:min(RecentLimit, len(orders))]
	return d
}

func prependOrder(orders []api.Order, o api.Order) []api.Order {
	out := make([]api.Order, 0, len(orders)+1)
	out = append(out, o)
	for _, existing := range orders {
		if existing.ID != o.ID {
			out = append(out, existing)
		}
	}
	return out
}

func replaceOrder(orders []api.Order, o api.Order) []api.Order {
	out := make([]api.Order, len(orders))
	copy(out, orders)
	for i := range out {
		if out[i].ID == o.ID {
			out[i] = o
		}
	}
	return out
}

func removeOrder(orders []api.Order, id string) []api.Order {
	out := make([]api.Order, 0, len(orders))
	for _, o := range orders {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}

func copyDetails(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
