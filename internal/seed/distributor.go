package seed

import (
	"fmt"

	"order-saga-client/internal/api"
)

// Batch is a group of requests submitted sequentially by one worker
type Batch struct {
	ID       int
	Requests []api.CreateOrderRequest
}

// Distribute divides requests into batches of at most batchSize
func Distribute(reqs []api.CreateOrderRequest, batchSize int) []Batch {
	if len(reqs) == 0 || batchSize < 1 {
		return nil
	}

	numBatches := (len(reqs) + batchSize - 1) / batchSize
	batches := make([]Batch, 0, numBatches)

	for i := 0; i < len(reqs); i += batchSize {
		end := min(i+batchSize, len(reqs))
		batches = append(batches, Batch{
			ID:       len(batches) + 1,
			Requests: reqs[i:end],
		})
	}

	return batches
}

// BatchStats summarizes batch sizes and payment methods
func BatchStats(batches []Batch) map[string]interface{} {
	total := 0
	methods := make(map[string]int)
	for _, b := range batches {
		total += len(b.Requests)
		for _, req := range b.Requests {
			methods[req.PaymentMethod]++
		}
	}

	stats := map[string]interface{}{
		"totalBatches":  len(batches),
		"totalRequests": total,
		"methods":       methods,
	}
	if len(batches) > 0 {
		stats["avgBatchSize"] = float64(total) / float64(len(batches))
	}
	return stats
}

// ValidateBatches ensures batches are properly formed
func ValidateBatches(batches []Batch) error {
	if len(batches) == 0 {
		return fmt.Errorf("no batches to validate")
	}

	for _, batch := range batches {
		if len(batch.Requests) == 0 {
			return fmt.Errorf("batch %d has no requests", batch.ID)
		}
	}

	return nil
}
