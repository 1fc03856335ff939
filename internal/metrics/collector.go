// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"strings"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot represents pipeline statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64                       `json:"uptime_seconds"`
	Redact        *OperationSnapshot            `json:"redact,omitempty"`
	Classify      *OperationSnapshot            `json:"classify,omitempty"`
	LLMGenerate   *OperationSnapshot            `json:"llm_generate,omitempty"`
	Validate      *OperationSnapshot            `json:"validate,omitempty"`
	Persist       *OperationSnapshot            `json:"persist,omitempty"`
	Counters      map[string]int64              `json:"counters,omitempty"`
	Tiers         map[string]*OperationSnapshot `json:"tiers,omitempty"`
}

// Pipeline stage names for the collector.
const (
	OpRedact      = "redact"
	OpClassify    = "classify"
	OpLLMGenerate = "llm_generate"
	OpValidate    = "validate"
	OpPersist     = "persist"
)

// Counter names.
const (
	CounterNotes          = "notes"
	CounterDegraded       = "degraded"
	CounterFallbackParses = "fallback_parses"
	CounterTruncations    = "truncations"
	CounterSaveFailures   = "save_failures"
	CounterBackupsWritten = "backups_written"
)

// tierOpPrefix namespaces per-tier LLM usage inside ops.
const tierOpPrefix = "tier:"

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe, and recording on a nil Collector is a no-op.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	counters  map[string]int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		counters:  make(map[string]int64),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:         time.Duration(math.MaxInt64),
			MinInputTokens:  math.MaxInt64,
			MinOutputTokens: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens

	if inputTokens < m.MinInputTokens {
		m.MinInputTokens = inputTokens
	}
	if inputTokens > m.MaxInputTokens {
		m.MaxInputTokens = inputTokens
	}
	if outputTokens < m.MinOutputTokens {
		m.MinOutputTokens = outputTokens
	}
	if outputTokens > m.MaxOutputTokens {
		m.MaxOutputTokens = outputTokens
	}
}

// RecordTierUsage records LLM usage under both the aggregate operation and
// the per-tier breakdown.
func (c *Collector) RecordTierUsage(tier string, duration time.Duration, inputTokens, outputTokens int64) {
	c.RecordLLMUsage(OpLLMGenerate, duration, inputTokens, outputTokens)
	c.RecordLLMUsage(tierOpPrefix+tier, duration, inputTokens, outputTokens)
}

// Inc bumps a named counter.
func (c *Collector) Inc(name string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name]++
}

// Timer returns a func that records the elapsed time for op when called.
//
//	defer collector.Timer(metrics.OpValidate)()
func (c *Collector) Timer(op string) func() {
	start := time.Now()
	return func() { c.RecordTiming(op, time.Since(start)) }
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeTokens && (m.TotalInputTokens > 0 || m.TotalOutputTokens > 0) {
		totalIn := m.TotalInputTokens
		totalOut := m.TotalOutputTokens
		avgIn := float64(m.TotalInputTokens) / float64(m.Count)
		avgOut := float64(m.TotalOutputTokens) / float64(m.Count)
		minIn := m.MinInputTokens
		maxIn := m.MaxInputTokens
		minOut := m.MinOutputTokens
		maxOut := m.MaxOutputTokens

		// Reset sentinel values for display
		if minIn == math.MaxInt64 {
			minIn = 0
		}
		if minOut == math.MaxInt64 {
			minOut = 0
		}

		snap.TotalInputTokens = &totalIn
		snap.TotalOutputTokens = &totalOut
		snap.AvgInputTokens = &avgIn
		snap.AvgOutputTokens = &avgOut
		snap.MinInputTokens = &minIn
		snap.MaxInputTokens = &maxIn
		snap.MinOutputTokens = &minOut
		snap.MaxOutputTokens = &maxOut
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Redact:        snapshotOp(c.ops[OpRedact], false),
		Classify:      snapshotOp(c.ops[OpClassify], false),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate], true),
		Validate:      snapshotOp(c.ops[OpValidate], false),
		Persist:       snapshotOp(c.ops[OpPersist], false),
	}

	if len(c.counters) > 0 {
		snap.Counters = make(map[string]int64, len(c.counters))
		for k, v := range c.counters {
			snap.Counters[k] = v
		}
	}
	for op, m := range c.ops {
		tier, ok := strings.CutPrefix(op, tierOpPrefix)
		if !ok {
			continue
		}
		if snap.Tiers == nil {
			snap.Tiers = make(map[string]*OperationSnapshot)
		}
		snap.Tiers[tier] = snapshotOp(m, true)
	}

	return snap
}
