package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpRedact, 2*time.Millisecond)
	c.RecordTiming(OpRedact, 4*time.Millisecond)

	snap := c.Snapshot()
	require.NotNil(t, snap.Redact)
	assert.Equal(t, int64(2), snap.Redact.Count)
	assert.Equal(t, int64(6), snap.Redact.TotalTimeMs)
	assert.Equal(t, int64(2), snap.Redact.MinTimeMs)
	assert.Equal(t, int64(4), snap.Redact.MaxTimeMs)
	assert.Nil(t, snap.Redact.TotalInputTokens)
	assert.Nil(t, snap.Persist)
}

func TestCollectorTierUsage(t *testing.T) {
	c := NewCollector()
	c.RecordTierUsage("standard", 10*time.Millisecond, 100, 40)
	c.RecordTierUsage("advanced", 30*time.Millisecond, 300, 80)
	c.RecordTierUsage("standard", 20*time.Millisecond, 200, 60)

	snap := c.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	assert.Equal(t, int64(3), snap.LLMGenerate.Count)
	assert.Equal(t, int64(600), *snap.LLMGenerate.TotalInputTokens)

	require.Contains(t, snap.Tiers, "standard")
	std := snap.Tiers["standard"]
	assert.Equal(t, int64(2), std.Count)
	assert.Equal(t, int64(100), *std.MinInputTokens)
	assert.Equal(t, int64(200), *std.MaxInputTokens)
	assert.InDelta(t, 50.0, *std.AvgOutputTokens, 1e-9)
}

func TestCollectorCountersAndTimer(t *testing.T) {
	c := NewCollector()
	c.Inc(CounterNotes)
	c.Inc(CounterNotes)
	c.Inc(CounterDegraded)
	c.Timer(OpValidate)()

	snap := c.Snapshot()
	assert.Equal(t, int64(2), snap.Counters[CounterNotes])
	assert.Equal(t, int64(1), snap.Counters[CounterDegraded])
	require.NotNil(t, snap.Validate)
	assert.Equal(t, int64(1), snap.Validate.Count)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTiming(OpClassify, time.Millisecond)
		c.RecordTierUsage("standard", time.Millisecond, 1, 1)
		c.Inc(CounterNotes)
		c.Timer(OpPersist)()
	})
}
