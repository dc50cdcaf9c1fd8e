package seed

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-saga-client/internal/api"
	"order-saga-client/internal/config"
	"order-saga-client/internal/sandbox"
	"order-saga-client/internal/workflow"
)

func seedConfig() config.SeedConfig {
	return config.Default().Seed
}

func TestGenerateAllMethodMix(t *testing.T) {
	cfg := seedConfig()
	cfg.TotalOrders = 20
	cfg.DeclinedRatio = 0.25
	cfg.AsyncRatio = 0.1

	reqs := NewGenerator(cfg, 42).GenerateAll()
	require.Len(t, reqs, 20)

	methods := map[string]int{}
	keys := map[string]struct{}{}
	for _, req := range reqs {
		methods[req.PaymentMethod]++
		keys[req.IdempotencyKey] = struct{}{}
		assert.NoError(t, api.ValidateCreateOrder(req))
	}
	assert.Equal(t, 5, methods[sandbox.MethodDeclined])
	assert.Equal(t, 2, methods[sandbox.MethodAsync])
	assert.Equal(t, 13, methods[config.DefaultSeedPaymentMethod])
	assert.Len(t, keys, 20)
}

func TestGenerateAllIsReproducible(t *testing.T) {
	cfg := seedConfig()
	a := NewGenerator(cfg, 7).GenerateAll()
	b := NewGenerator(cfg, 7).GenerateAll()

	for i := range a {
		assert.Equal(t, a[i].CustomerID, b[i].CustomerID)
		assert.Equal(t, len(a[i].Items), len(b[i].Items))
		assert.NotEqual(t, a[i].IdempotencyKey, b[i].IdempotencyKey)
	}
}

func TestDistribute(t *testing.T) {
	reqs := NewGenerator(seedConfig(), 1).GenerateAll()

	batches := Distribute(reqs, 3)
	require.Len(t, batches, 4)
	assert.Equal(t, 1, batches[0].ID)
	assert.Len(t, batches[3].Requests, 1)
	assert.NoError(t, ValidateBatches(batches))

	stats := BatchStats(batches)
	assert.Equal(t, 4, stats["totalBatches"])
	assert.Equal(t, 10, stats["totalRequests"])

	assert.Nil(t, Distribute(nil, 3))
	assert.Error(t, ValidateBatches(nil))
	assert.Error(t, ValidateBatches([]Batch{{ID: 9}}))
}

func TestRunnerAgainstSandbox(t *testing.T) {
	srv := httptest.NewServer(sandbox.New(nil).Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL + sandbox.BasePath
	cfg.Seed.TotalOrders = 12
	cfg.Seed.DeclinedRatio = 0.25
	cfg.Seed.AsyncRatio = 0.25
	cfg.Seed.BatchSize = 4
	cfg.Seed.ParallelBatches = 3

	client := api.NewClient(cfg)
	store := workflow.NewStore(client)

	batches := Distribute(NewGenerator(cfg.Seed, 3).GenerateAll(), cfg.Seed.BatchSize)
	result, err := NewRunner(store, cfg.Seed, nil).Run(context.Background(), batches)
	require.NoError(t, err)

	assert.Equal(t, 12, result.TotalOrders)
	assert.Equal(t, 6, result.Outcomes[string(api.OutcomeCompleted)])
	assert.Equal(t, 3, result.Outcomes[string(api.OutcomeFailed)])
	assert.Equal(t, 3, result.Outcomes[string(api.OutcomeInProgress)])
	require.Len(t, result.BatchResults, 3)
	assert.Equal(t, 1, result.BatchResults[0].BatchID)

	orders, err := client.ListOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, orders, 12)
	assert.Len(t, store.Snapshot().Orders, 6)
	assert.Equal(t, 12, result.Stats()["submitted"])
}

type failingSubmitter struct{ calls int32 }

func (f *failingSubmitter) CreateOrder(ctx context.Context, req api.CreateOrderRequest) (api.Outcome, error) {
	atomic.AddInt32(&f.calls, 1)
	return api.Outcome{}, errors.New("connection refused")
}

func TestRunnerRecordsErrors(t *testing.T) {
	cfg := seedConfig()
	cfg.TotalOrders = 4
	cfg.BetweenCreates = time.Millisecond

	sub := &failingSubmitter{}
	batches := Distribute(NewGenerator(cfg, 1).GenerateAll(), 2)
	result, err := NewRunner(sub, cfg, nil).Run(context.Background(), batches)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Outcomes[OutcomeError])
	assert.Equal(t, int32(4), atomic.LoadInt32(&sub.calls))
	assert.NotEmpty(t, result.BatchResults[0].Submissions[0].Error)
}

func TestRunnerCancelled(t *testing.T) {
	cfg := seedConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sub := &failingSubmitter{}
	batches := Distribute(NewGenerator(cfg, 1).GenerateAll(), 5)
	_, err := NewRunner(sub, cfg, nil).Run(ctx, batches)
	assert.ErrorIs(t, err, context.Canceled)
}
