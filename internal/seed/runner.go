package seed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"order-saga-client/internal/api"
	"order-saga-client/internal/apierr"
	"order-saga-client/internal/config"
	"order-saga-client/internal/utils"
)

// OutcomeError labels submissions that ended in an error instead of a saga outcome
const OutcomeError = "Error"

// Submitter creates orders, usually a workflow store
type Submitter interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest) (api.Outcome, error)
}

// Runner submits batches in parallel and each batch's requests in sequence
type Runner struct {
	submitter Submitter
	cfg       config.SeedConfig
	logger    *utils.Logger
}

// NewRunner creates a batch runner
func NewRunner(submitter Submitter, cfg config.SeedConfig, logger *utils.Logger) *Runner {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &Runner{submitter: submitter, cfg: cfg, logger: logger}
}

// SubmissionResult is the result of one create-order call
type SubmissionResult struct {
	IdempotencyKey string        `json:"idempotencyKey"`
	Outcome        string        `json:"outcome"`
	OrderID        string        `json:"orderId,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// BatchResult represents the result of processing a single batch
type BatchResult struct {
	BatchID     int                `json:"batchId"`
	TotalOrders int                `json:"totalOrders"`
	Submissions []SubmissionResult `json:"submissions"`
	StartTime   time.Time          `json:"startTime"`
	EndTime     time.Time          `json:"endTime"`
	Duration    time.Duration      `json:"duration"`
}

// Result represents the overall run
type Result struct {
	TotalOrders  int            `json:"totalOrders"`
	Outcomes     map[string]int `json:"outcomes"`
	BatchResults []BatchResult  `json:"batchResults"`
	StartTime    time.Time      `json:"startTime"`
	EndTime      time.Time      `json:"endTime"`
	Duration     time.Duration  `json:"duration"`
}

// Run processes all batches, at most ParallelBatches at a time
func (r *Runner) Run(ctx context.Context, batches []Batch) (*Result, error) {
	result := &Result{
		StartTime:    time.Now(),
		Outcomes:     make(map[string]int),
		BatchResults: make([]BatchResult, 0, len(batches)),
	}

	resultsChan := make(chan BatchResult, len(batches))
	errorsChan := make(chan error, len(batches))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, max(r.cfg.ParallelBatches, 1))

	for _, batch := range batches {
		wg.Add(1)
		go func(b Batch) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				errorsChan <- ctx.Err()
				return
			case semaphore <- struct{}{}:
			}

			resultsChan <- r.processSingleBatch(ctx, b)
			<-semaphore
		}(batch)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
		close(errorsChan)
	}()

	for batchResult := range resultsChan {
		result.BatchResults = append(result.BatchResults, batchResult)
		result.TotalOrders += batchResult.TotalOrders
		for _, s := range batchResult.Submissions {
			result.Outcomes[s.Outcome]++
		}
	}
	sort.Slice(result.BatchResults, func(i, j int) bool {
		return result.BatchResults[i].BatchID < result.BatchResults[j].BatchID
	})

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	for err := range errorsChan {
		if err != nil {
			return result, fmt.Errorf("batch processing error: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("batch processing error: %w", err)
	}

	r.logger.Info("Seed run complete", result.Stats())
	return result, nil
}

func (r *Runner) processSingleBatch(ctx context.Context, batch Batch) BatchResult {
	result := BatchResult{
		BatchID:     batch.ID,
		StartTime:   time.Now(),
		TotalOrders: len(batch.Requests),
		Submissions: make([]SubmissionResult, 0, len(batch.Requests)),
	}

	for i, req := range batch.Requests {
		if ctx.Err() != nil {
			break
		}

		result.Submissions = append(result.Submissions, r.submit(ctx, req))

		if i < len(batch.Requests)-1 && r.cfg.BetweenCreates > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.cfg.BetweenCreates):
			}
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	r.logger.Debug("Batch finished", map[string]interface{}{
		"batchId":   batch.ID,
		"submitted": len(result.Submissions),
		"duration":  result.Duration.String(),
	})
	return result
}

func (r *Runner) submit(ctx context.Context, req api.CreateOrderRequest) SubmissionResult {
	start := time.Now()
	outcome, err := r.submitter.CreateOrder(ctx, req)

	s := SubmissionResult{
		IdempotencyKey: req.IdempotencyKey,
		Duration:       time.Since(start),
	}
	if err != nil {
		s.Outcome = OutcomeError
		s.Error = apierr.Normalize(err).Message
		return s
	}
	s.Outcome = string(outcome.Kind)
	if outcome.Order != nil {
		s.OrderID = outcome.Order.ID
	}
	return s
}

// Stats flattens the result for logging
func (res *Result) Stats() map[string]interface{} {
	var total time.Duration
	count := 0
	for _, b := range res.BatchResults {
		for _, s := range b.Submissions {
			total += s.Duration
			count++
		}
	}

	var avg time.Duration
	if count > 0 {
		avg = total / time.Duration(count)
	}

	stats := map[string]interface{}{
		"totalOrders":       res.TotalOrders,
		"submitted":         count,
		"totalBatches":      len(res.BatchResults),
		"totalDuration":     res.Duration.String(),
		"avgSubmissionTime": avg.String(),
	}
	for outcome, n := range res.Outcomes {
		stats["outcome"+outcome] = n
	}
	return stats
}
