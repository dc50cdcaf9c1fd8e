package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"order-saga-client/internal/api"
	"order-saga-client/internal/config"
	"order-saga-client/internal/idempotency"
	"order-saga-client/internal/reconcile"
	"order-saga-client/internal/reporter"
	"order-saga-client/internal/sandbox"
	"order-saga-client/internal/seed"
	"order-saga-client/internal/utils"
	"order-saga-client/internal/workflow"
)

// app wires the client stack for one command
type app struct {
	cfg     *config.Config
	logger  *utils.Logger
	client  *api.Client
	store   *workflow.Store
	journal *utils.Journal
	out     io.Writer
}

func newApp(cfg *config.Config, logger *utils.Logger, withJournal bool) (*app, error) {
	opts := []api.Option{api.WithLogger(logger)}
	if cfg.Auth != nil {
		opts = append(opts, api.WithTokenSource(api.NewAuthManager(cfg.Auth, cfg.API.Timeout)))
	}
	client := api.NewClient(cfg, opts...)

	a := &app{cfg: cfg, logger: logger, client: client, out: os.Stdout}

	storeOpts := []workflow.Option{workflow.WithLogger(logger)}
	if withJournal && !cfg.Journal.Disabled {
		journal, err := utils.NewJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		a.journal = journal
		storeOpts = append(storeOpts, workflow.WithJournal(journal))
	}
	a.store = workflow.NewStore(client, storeOpts...)
	return a, nil
}

func (a *app) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.logger.Warn("Failed to close journal", map[string]interface{}{"error": err.Error()})
		}
	}
}

// run dispatches one subcommand
func run(ctx context.Context, cfg *config.Config, logger *utils.Logger, command string, args []string) error {
	if command == "sandbox" {
		return runSandbox(ctx, cfg, logger, args)
	}

	a, err := newApp(cfg, logger, command == "create" || command == "seed")
	if err != nil {
		return err
	}
	defer a.close()

	switch command {
	case "create":
		return a.create(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "find":
		return a.find(ctx, args)
	case "list":
		return a.list(ctx, args)
	case "failed":
		return a.failed(ctx, args)
	case "refresh":
		return a.refresh(ctx, args)
	case "risk":
		return a.risk(ctx, args)
	case "payment":
		return a.payment(ctx, args)
	case "dashboard":
		return a.dashboard(ctx, args)
	case "reconcile":
		return a.reconcile(ctx, args)
	case "seed":
		return a.seed(ctx, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	fs.SetOutput(os.Stderr)
	return fs.Parse(args)
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	file := fs.String("file", "", "Order request file (JSON or YAML)")
	key := fs.String("key", "", "Idempotency key (UUID v4), generated when omitted")
	save := fs.String("save", "", "Write the resulting workflow state to this JSON file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("create requires -file")
	}

	var req api.CreateOrderRequest
	if err := config.LoadDocument(*file, &req); err != nil {
		return err
	}

	// -key wins over the file, which wins over a fresh key
	session := idempotency.NewSession()
	for _, k := range []string{req.IdempotencyKey, *key} {
		if k == "" {
			continue
		}
		if err := session.Override(k); err != nil {
			return err
		}
	}
	req.IdempotencyKey = session.Key()

	a.logger.Info("Submitting order", map[string]interface{}{
		"idempotencyKey": req.IdempotencyKey,
		"items":          len(req.Items),
		"total":          req.Total().StringFixed(2),
	})

	outcome, err := a.store.CreateOrder(ctx, req)
	if err != nil {
		return err
	}
	reporter.PrintOutcome(a.out, outcome)

	if a.journal != nil {
		fmt.Fprintf(a.out, "Journal: %s\n", a.journal.Path())
	}
	if *save != "" {
		if err := reporter.SaveJSON(a.store.Snapshot(), *save); err != nil {
			a.logger.Warn("Failed to save state to JSON", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	id := fs.String("id", "", "Order ID")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := a.store.FetchOrderByID(ctx, *id); err != nil {
		return err
	}
	reporter.PrintOrder(a.out, *a.store.Snapshot().CurrentOrder)
	return nil
}

func (a *app) find(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("find", flag.ContinueOnError)
	number := fs.String("number", "", "Order number, e.g. ORD-0000000001")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := a.store.SearchByNumber(ctx, *number); err != nil {
		return err
	}
	reporter.PrintOrder(a.out, *a.store.Snapshot().CurrentOrder)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	statusFlag := fs.String("status", "", "Filter by status (PENDING, PAID, PAYMENT_FAILED, CANCELED)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	status, err := api.ParseStatus(*statusFlag)
	if err != nil {
		return err
	}

	if err := a.store.FetchOrders(ctx, status); err != nil {
		return err
	}
	title := "ORDERS"
	if status != "" {
		title += " " + string(status)
	}
	reporter.PrintOrders(a.out, title, a.store.Snapshot().Orders)
	return nil
}

func (a *app) failed(ctx context.Context, args []string) error {
	if err := parseFlags(flag.NewFlagSet("failed", flag.ContinueOnError), args); err != nil {
		return err
	}
	if err := a.store.FetchFailedPaymentOrders(ctx); err != nil {
		return err
	}
	reporter.PrintOrders(a.out, "FAILED PAYMENTS", a.store.Snapshot().FailedPaymentOrders)
	return nil
}

func (a *app) refresh(ctx context.Context, args []string) error {
	return a.updateOrder(ctx, "refresh", args, a.store.RefreshPaymentStatus)
}

func (a *app) risk(ctx context.Context, args []string) error {
	return a.updateOrder(ctx, "risk", args, a.store.AnalyzeRisk)
}

func (a *app) updateOrder(ctx context.Context, name string, args []string, call func(context.Context, string) (*api.Order, error)) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "Order ID")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	order, err := call(ctx, *id)
	if err != nil {
		return err
	}
	reporter.PrintOrder(a.out, *order)
	return nil
}

func (a *app) payment(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("payment", flag.ContinueOnError)
	id := fs.String("id", "", "Payment ID")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	status, err := a.client.CheckPaymentStatus(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Payment %s: %s\n", status.PaymentID, status.Status)
	return nil
}

func (a *app) dashboard(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	save := fs.String("save", "", "Write the dashboard to this JSON file")
	metrics := fs.Bool("metrics", false, "Print client call metrics")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	if err := a.store.FetchOrders(ctx, ""); err != nil {
		return err
	}
	d := a.store.Dashboard()
	reporter.PrintDashboard(a.out, d)
	if *metrics {
		reporter.PrintMetrics(a.out, a.client.Metrics().GetSnapshot())
	}
	if *save != "" {
		return reporter.SaveJSON(d, *save)
	}
	return nil
}

func (a *app) reconcile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	journal := fs.String("journal", "", "Journal file to reconcile, or \"latest\" for the newest under the journal dir")
	save := fs.String("save", "", "Write the reconciliation result to this JSON file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	r := reconcile.NewReconciler(a.client, a.logger, a.cfg.Reconcile.Concurrency)

	var (
		result *reconcile.Result
		err    error
	)
	switch *journal {
	case "":
		result, err = r.ReconcileOutstanding(ctx)
	case "latest":
		result, err = r.ReconcileLatestJournal(ctx, a.cfg.Journal.Dir)
	default:
		result, err = r.ReconcileJournal(ctx, *journal)
	}
	if result != nil {
		reporter.PrintReconcile(a.out, result)
	}
	if err != nil {
		return err
	}

	reporter.PrintMetrics(a.out, a.client.Metrics().GetSnapshot())
	if *save != "" {
		return reporter.SaveJSON(result, *save)
	}
	return nil
}

func (a *app) seed(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	scfg := a.cfg.Seed
	fs.IntVar(&scfg.TotalOrders, "count", scfg.TotalOrders, "Number of orders to submit")
	fs.IntVar(&scfg.BatchSize, "batch", scfg.BatchSize, "Orders per batch")
	fs.IntVar(&scfg.ParallelBatches, "parallel", scfg.ParallelBatches, "Batches submitted at once")
	fs.Float64Var(&scfg.DeclinedRatio, "declined", scfg.DeclinedRatio, "Share of orders using the DECLINED payment method")
	fs.Float64Var(&scfg.AsyncRatio, "async", scfg.AsyncRatio, "Share of orders using the ASYNC payment method")
	randSeed := fs.Int64("seed", time.Now().UnixNano(), "Random seed for generated orders")
	save := fs.String("save", "", "Write the run result to this JSON file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := scfg.Validate(); err != nil {
		return err
	}

	batches := seed.Distribute(seed.NewGenerator(scfg, *randSeed).GenerateAll(), scfg.BatchSize)
	if err := seed.ValidateBatches(batches); err != nil {
		return fmt.Errorf("batch validation failed: %w", err)
	}
	a.logger.Info("Batches created", seed.BatchStats(batches))

	result, err := seed.NewRunner(a.store, scfg, a.logger).Run(ctx, batches)
	if result != nil {
		reporter.PrintSeed(a.out, result)
	}
	if err != nil {
		return err
	}
	if a.journal != nil {
		fmt.Fprintf(a.out, "Journal: %s\n", a.journal.Path())
	}
	if *save != "" {
		return reporter.SaveJSON(result, *save)
	}
	return nil
}

func runSandbox(ctx context.Context, cfg *config.Config, logger *utils.Logger, args []string) error {
	fs := flag.NewFlagSet("sandbox", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Sandbox.Addr, "Listen address")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	return sandbox.New(logger).Run(ctx, *addr)
}
