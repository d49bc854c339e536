package model

import "time"

// Phase is one of the ordered stages of an extraction job.
type Phase string

const (
	PhaseDiscovery   Phase = "discovery"
	PhaseSelection   Phase = "selection"
	PhaseExtraction  Phase = "extraction"
	PhaseAggregation Phase = "aggregation"
	PhaseSocial      Phase = "social"
	PhaseEmbedding   Phase = "embedding"
)

// Phases lists the pipeline stages in execution order.
var Phases = []Phase{
	PhaseDiscovery, PhaseSelection, PhaseExtraction,
	PhaseAggregation, PhaseSocial, PhaseEmbedding,
}

// EventStatus describes what a progress event reports about its phase.
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventProgress  EventStatus = "progress"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
)

// ProgressEvent is an immutable snapshot emitted on the progress bus.
// Subscribers receive copies, never references into pipeline state.
type ProgressEvent struct {
	JobID    string         `json:"job_id"`
	Phase    Phase          `json:"phase"`
	Status   EventStatus    `json:"status"`
	TS       time.Time      `json:"ts"`
	Message  string         `json:"message,omitempty"`
	Counters map[string]int `json:"counters,omitempty"`
}

// BatchSummary is the final aggregate emitted after a batch run.
type BatchSummary struct {
	Total         int           `json:"total"`
	Success       int           `json:"success"`
	Partial       int           `json:"partial"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	Duration      time.Duration `json:"duration"`
	AggregateCost float64       `json:"aggregate_cost"`
}
