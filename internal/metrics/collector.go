package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector counts what happened during one run. The coordinator records
// into it after each stage completes; counters are atomic so a snapshot can
// be taken from another goroutine while a run is in progress.
type Collector struct {
	onlineRows       atomic.Int64
	inStoreRows      atomic.Int64
	fallbacks        atomic.Int64
	droppedRows      atomic.Int64
	negativeRows     atomic.Int64
	aggregates       atomic.Int64
	upsertsSucceeded atomic.Int64
	upsertsFailed    atomic.Int64
	stageRetries     atomic.Int64

	mu             sync.Mutex
	stageDurations map[string]time.Duration

	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{
		stageDurations: make(map[string]time.Duration),
		startTime:      time.Now(),
	}
}

func (c *Collector) RecordExtracted(source string, n int) {
	if source == "online" {
		c.onlineRows.Add(int64(n))
		return
	}
	c.inStoreRows.Add(int64(n))
}

func (c *Collector) RecordFallback()        { c.fallbacks.Add(1) }
func (c *Collector) RecordDropped(n int)    { c.droppedRows.Add(int64(n)) }
func (c *Collector) RecordNegative(n int)   { c.negativeRows.Add(int64(n)) }
func (c *Collector) RecordAggregates(n int) { c.aggregates.Add(int64(n)) }
func (c *Collector) RecordStageRetry()      { c.stageRetries.Add(1) }

func (c *Collector) RecordUpsert(ok bool) {
	if ok {
		c.upsertsSucceeded.Add(1)
		return
	}
	c.upsertsFailed.Add(1)
}

// TrackStageDuration adds d to the named stage's total, across attempts.
func (c *Collector) TrackStageDuration(stage string, d time.Duration) {
	c.mu.Lock()
	c.stageDurations[stage] += d
	c.mu.Unlock()
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	OnlineRows       int64             `json:"online_rows"`
	InStoreRows      int64             `json:"in_store_rows"`
	Fallbacks        int64             `json:"fallbacks"`
	DroppedRows      int64             `json:"dropped_rows"`
	NegativeRows     int64             `json:"negative_rows"`
	Aggregates       int64             `json:"aggregates"`
	UpsertsSucceeded int64             `json:"upserts_succeeded"`
	UpsertsFailed    int64             `json:"upserts_failed"`
	StageRetries     int64             `json:"stage_retries"`
	StageDurations   map[string]string `json:"stage_durations"`
	Elapsed          string            `json:"elapsed"`
}

func (c *Collector) Snapshot() Snapshot {
	durations := make(map[string]string)
	c.mu.Lock()
	for stage, d := range c.stageDurations {
		durations[stage] = d.Round(time.Millisecond).String()
	}
	c.mu.Unlock()

	return Snapshot{
		OnlineRows:       c.onlineRows.Load(),
		InStoreRows:      c.inStoreRows.Load(),
		Fallbacks:        c.fallbacks.Load(),
		DroppedRows:      c.droppedRows.Load(),
		NegativeRows:     c.negativeRows.Load(),
		Aggregates:       c.aggregates.Load(),
		UpsertsSucceeded: c.upsertsSucceeded.Load(),
		UpsertsFailed:    c.upsertsFailed.Load(),
		StageRetries:     c.stageRetries.Load(),
		StageDurations:   durations,
		Elapsed:          time.Since(c.startTime).Round(time.Millisecond).String(),
	}
}

// JSON returns the snapshot as indented JSON.
func (c *Collector) JSON() (string, error) {
	data, err := json.MarshalIndent(c.Snapshot(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
