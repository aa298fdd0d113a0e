package service

import (
	"sync/atomic"
	"time"
)

// Metrics counts round trips to the embedding service and the language
// model. A nil *Metrics records nothing.
type Metrics struct {
	embedCalls   atomic.Int64
	embedErrors  atomic.Int64
	embedLatency atomic.Int64 // nanoseconds
	llmCalls     atomic.Int64
	llmErrors    atomic.Int64
	llmLatency   atomic.Int64 // nanoseconds
	processed    atomic.Int64
	asked        atomic.Int64
}

func NewMetrics() *Metrics { return &Metrics{} }

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	EmbedCalls        int64   `json:"embed_calls"`
	EmbedErrors       int64   `json:"embed_errors"`
	EmbedAvgLatencyMs float64 `json:"embed_avg_latency_ms"`
	LLMCalls          int64   `json:"llm_calls"`
	LLMErrors         int64   `json:"llm_errors"`
	LLMAvgLatencyMs   float64 `json:"llm_avg_latency_ms"`
	Processed         int64   `json:"processed"`
	Asked             int64   `json:"asked"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	embedCalls := m.embedCalls.Load()
	llmCalls := m.llmCalls.Load()
	return MetricsSnapshot{
		EmbedCalls:        embedCalls,
		EmbedErrors:       m.embedErrors.Load(),
		EmbedAvgLatencyMs: avgMillis(m.embedLatency.Load(), embedCalls),
		LLMCalls:          llmCalls,
		LLMErrors:         m.llmErrors.Load(),
		LLMAvgLatencyMs:   avgMillis(m.llmLatency.Load(), llmCalls),
		Processed:         m.processed.Load(),
		Asked:             m.asked.Load(),
	}
}

func (m *Metrics) recordEmbed(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.embedCalls.Add(1)
	m.embedLatency.Add(d.Nanoseconds())
	if err != nil {
		m.embedErrors.Add(1)
	}
}

func (m *Metrics) recordLLM(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.llmCalls.Add(1)
	m.llmLatency.Add(d.Nanoseconds())
	if err != nil {
		m.llmErrors.Add(1)
	}
}

func (m *Metrics) recordProcess() {
	if m != nil {
		m.processed.Add(1)
	}
}

func (m *Metrics) recordAsk() {
	if m != nil {
		m.asked.Add(1)
	}
}

func avgMillis(totalNs, calls int64) float64 {
	if calls == 0 {
		return 0
	}
	return float64(totalNs) / float64(calls) / 1e6
}
