package utils

import (
	"sort"
	"sync"
	"time"
)

// Metrics tracks client-side call and outcome counters
type Metrics struct {
	mu sync.RWMutex

	// API call metrics
	apiCalls     map[string]int
	apiSuccesses map[string]int
	apiFailures  map[string]int
	apiDurations map[string][]time.Duration

	// create-order outcomes keyed by Completed/InProgress/Failed/Error
	outcomes map[string]int

	// normalized error kinds
	errorKinds map[string]int
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{
		apiCalls:     make(map[string]int),
		apiSuccesses: make(map[string]int),
		apiFailures:  make(map[string]int),
		apiDurations: make(map[string][]time.Duration),
		outcomes:     make(map[string]int),
		errorKinds:   make(map[string]int),
	}
}

// RecordAPICall records an API call
func (m *Metrics) RecordAPICall(endpoint string, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.apiCalls[endpoint]++
	if success {
		m.apiSuccesses[endpoint]++
	} else {
		m.apiFailures[endpoint]++
	}

	m.apiDurations[endpoint] = append(m.apiDurations[endpoint], duration)
}

// RecordOutcome records the classification of a create-order response
func (m *Metrics) RecordOutcome(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.outcomes[outcome]++
}

// RecordErrorKind records the kind of a normalized error
func (m *Metrics) RecordErrorKind(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorKinds[kind]++
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := MetricsSnapshot{
		APICalls:   make(map[string]APIMetrics, len(m.apiCalls)),
		Outcomes:   make(map[string]int, len(m.outcomes)),
		ErrorKinds: make(map[string]int, len(m.errorKinds)),
	}

	for endpoint := range m.apiCalls {
		snapshot.APICalls[endpoint] = APIMetrics{
			TotalCalls:      m.apiCalls[endpoint],
			SuccessfulCalls: m.apiSuccesses[endpoint],
			FailedCalls:     m.apiFailures[endpoint],
			AvgDuration:     calculateAverage(m.apiDurations[endpoint]),
			MinDuration:     calculateMin(m.apiDurations[endpoint]),
			MaxDuration:     calculateMax(m.apiDurations[endpoint]),
		}
	}

	for outcome, count := range m.outcomes {
		snapshot.Outcomes[outcome] = count
	}
	for kind, count := range m.errorKinds {
		snapshot.ErrorKinds[kind] = count
	}

	return snapshot
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	APICalls   map[string]APIMetrics `json:"apiCalls"`
	Outcomes   map[string]int        `json:"outcomes"`
	ErrorKinds map[string]int        `json:"errorKinds"`
}

// Endpoints returns the recorded endpoint names in sorted order
func (s MetricsSnapshot) Endpoints() []string {
	names := make([]string, 0, len(s.APICalls))
	for name := range s.APICalls {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// APIMetrics represents metrics for a specific API endpoint
type APIMetrics struct {
	TotalCalls      int           `json:"totalCalls"`
	SuccessfulCalls int           `json:"successfulCalls"`
	FailedCalls     int           `json:"failedCalls"`
	AvgDuration     time.Duration `json:"avgDuration"`
	MinDuration     time.Duration `json:"minDuration"`
	MaxDuration     time.Duration `json:"maxDuration"`
}

func calculateAverage(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}

	return total / time.Duration(len(durations))
}

func calculateMin(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	lo := durations[0]
	for _, d := range durations[1:] {
		lo = min(lo, d)
	}
	return lo
}

func calculateMax(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	hi := durations[0]
	for _, d := range durations[1:] {
		hi = max(hi, d)
	}
	return hi
}
