package observability

import (
	"sync"
)

// Metrics provides basic in-memory counters for the conversation engine.
type Metrics struct {
	mu                sync.Mutex
	commandCount      map[string]int64
	commitCount       map[string]int64
	uploadCount       map[string]int64
	subscriptionDrops map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		commandCount:      make(map[string]int64),
		commitCount:       make(map[string]int64),
		uploadCount:       make(map[string]int64),
		subscriptionDrops: make(map[string]int64),
	}
}

// RecordCommand increments the counter for a session command.
func (m *Metrics) RecordCommand(name string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commandCount[name]++
}

// RecordCommit tracks transactional write outcomes.
func (m *Metrics) RecordCommit(ok bool) {
	if m == nil {
		return
	}
	key := "failed"
	if ok {
		key = "committed"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCount[key]++
}

// RecordUpload tracks attachment upload outcomes by classified code.
func (m *Metrics) RecordUpload(code string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCount[code]++
}

// RecordSubscriptionDrop counts a terminated directory or log subscription.
func (m *Metrics) RecordSubscriptionDrop(kind string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptionDrops[kind]++
}

// Snapshot copies all counters, keyed by "family|key".
func (m *Metrics) Snapshot() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64)
	for k, v := range m.commandCount {
		out["command|"+k] = v
	}
	for k, v := range m.commitCount {
		out["commit|"+k] = v
	}
	for k, v := range m.uploadCount {
		out["upload|"+k] = v
	}
	for k, v := range m.subscriptionDrops {
		out["subscription_drop|"+k] = v
	}
	return out
}
