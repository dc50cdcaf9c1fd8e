package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-saga-client/internal/config"
	"order-saga-client/internal/sandbox"
	"order-saga-client/internal/utils"
)

const orderYAML = `customerId: 0b6f5a53-8a4f-4f43-9a53-2f6a7d1c2e10
customerName: Ada Lovelace
customerEmail: ada@example.com
paymentMethod: %s
items:
  - productId: 5d1c9f0e-3b2a-4c6d-8e7f-9a0b1c2d3e4f
    productName: Keyboard
    quantity: 2
    unitPrice: 49.90
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	srv := httptest.NewServer(sandbox.New(nil).Handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL + sandbox.BasePath
	cfg.API.Timeout = 5 * time.Second
	cfg.Journal.Dir = filepath.Join(t.TempDir(), "logs")
	return cfg
}

func writeOrder(t *testing.T, method string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(orderYAML, method)), 0644))
	return path
}

func TestCreateAndReconcileJournal(t *testing.T) {
	cfg := testConfig(t)
	logger := utils.NewNopLogger()
	ctx := context.Background()

	require.NoError(t, run(ctx, cfg, logger, "create", []string{"-file", writeOrder(t, "PIX")}))
	require.NoError(t, run(ctx, cfg, logger, "create", []string{"-file", writeOrder(t, sandbox.MethodDeclined)}))

	// both runs land in one file unless the clock ticks over a second
	journals, err := filepath.Glob(filepath.Join(cfg.Journal.Dir, "*", "submissions_*.jsonl"))
	require.NoError(t, err)
	require.NotEmpty(t, journals)
	var entries []utils.JournalEntry
	for _, path := range journals {
		got, err := utils.ReadJournal(path)
		require.NoError(t, err)
		entries = append(entries, got...)
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "Completed", entries[0].Outcome)
	assert.Equal(t, "Failed", entries[1].Outcome)

	out := filepath.Join(t.TempDir(), "reconcile.json")
	require.NoError(t, run(ctx, cfg, logger, "reconcile", []string{"-journal", "latest", "-save", out}))
	assert.FileExists(t, out)

	require.NoError(t, run(ctx, cfg, logger, "find", []string{"-number", entries[0].OrderNumber}))
	require.NoError(t, run(ctx, cfg, logger, "get", []string{"-id", entries[1].OrderID}))
	require.NoError(t, run(ctx, cfg, logger, "list", []string{"-status", "PAID"}))
	require.NoError(t, run(ctx, cfg, logger, "failed", nil))
	require.NoError(t, run(ctx, cfg, logger, "dashboard", []string{"-metrics"}))
}

func TestSeedThenReconcile(t *testing.T) {
	cfg := testConfig(t)
	logger := utils.NewNopLogger()
	ctx := context.Background()

	require.NoError(t, run(ctx, cfg, logger, "seed", []string{"-count", "6", "-batch", "2", "-async", "0.5", "-seed", "11"}))
	require.NoError(t, run(ctx, cfg, logger, "reconcile", nil))

	err := run(ctx, cfg, logger, "seed", []string{"-declined", "0.8", "-async", "0.8"})
	assert.ErrorContains(t, err, "sum to at most 1")
}

func TestCreateRejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	err := run(context.Background(), cfg, utils.NewNopLogger(), "create", []string{"-file", writeOrder(t, "PIX"), "-key", "123"})
	assert.Error(t, err)
}

func TestFindRequiresNumber(t *testing.T) {
	cfg := testConfig(t)
	err := run(context.Background(), cfg, utils.NewNopLogger(), "find", nil)
	assert.ErrorContains(t, err, "Enter an order number")
}

func TestUnknownCommand(t *testing.T) {
	cfg := testConfig(t)
	err := run(context.Background(), cfg, utils.NewNopLogger(), "explode", nil)
	assert.ErrorContains(t, err, "unknown command")
}
