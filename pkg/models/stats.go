package models

import "time"

// Stats aggregates feedback over a recency window.
type Stats struct {
	Days        int            `json:"days"`
	TotalCount  int            `json:"total_count"`
	BySentiment map[string]int `json:"by_sentiment"`
	BySource    map[string]int `json:"by_source"`
	ByTopic     map[string]int `json:"by_topic"`
	ByUrgency   map[string]int `json:"by_urgency"`
	ByIntent    map[string]int `json:"by_intent"`
	// AvgNPS is computed only over items that carry an NPS score.
	AvgNPS *float64 `json:"avg_nps"`
}

// NewStats returns a Stats value with all maps initialised.
func NewStats(days int) *Stats {
	return &Stats{
		Days:        days,
		BySentiment: map[string]int{},
		BySource:    map[string]int{},
		ByTopic:     map[string]int{},
		ByUrgency:   map[string]int{},
		ByIntent:    map[string]int{},
	}
}

// VolumeBucket is one time bucket of feedback volume.
type VolumeBucket struct {
	Bucket      time.Time      `json:"bucket"`
	Total       int            `json:"total"`
	BySentiment map[string]int `json:"by_sentiment"`
	BySource    map[string]int `json:"by_source"`
}

// VolumeReport is the time-bucketed volume breakdown.
type VolumeReport struct {
	Grain    Grain          `json:"grain"`
	DaysBack int            `json:"days_back"`
	Buckets  []VolumeBucket `json:"buckets"`
}

// UnclassifiedLabel is used in breakdowns for items without a classification.
const UnclassifiedLabel = "unclassified"
