package models

import (
	"math"
	"time"
)

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal returns true once the job can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// ImportKind selects the row parser for a batch import.
type ImportKind string

const (
	ImportKindNPSCSV      ImportKind = "nps_csv"
	ImportKindZendeskJSON ImportKind = "zendesk_json"
	ImportKindMappedCSV   ImportKind = "mapped_csv"
	ImportKindProfilesCSV ImportKind = "profiles_csv"
)

// Valid returns true if k is a known import kind.
func (k ImportKind) Valid() bool {
	switch k {
	case ImportKindNPSCSV, ImportKindZendeskJSON, ImportKindMappedCSV, ImportKindProfilesCSV:
		return true
	}
	return false
}

// ImportProgress is reported after every processed row.
type ImportProgress struct {
	Current    int     `json:"current"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Errors     int     `json:"errors"`
	Percentage float64 `json:"percentage"`
	Message    string  `json:"message"`
}

// ComputePercentage returns current/total as a percentage rounded to one decimal.
func ComputePercentage(current, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(current)/float64(total)*1000) / 10
}

// RowError records a row-level failure in a batch import.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
	// ItemID is set when the row was stored without its classification or embedding.
	ItemID string `json:"item_id,omitempty"`
}

// ImportResult is attached to a job once it finishes.
type ImportResult struct {
	Imported    int        `json:"imported"`
	ImportedIDs []string   `json:"imported_ids,omitempty"`
	Errors      []RowError `json:"errors"`
}

// ImportJob is a point-in-time snapshot of a batch import.
type ImportJob struct {
	ID          string         `json:"id"`
	Kind        ImportKind     `json:"kind"`
	Status      JobStatus      `json:"status"`
	Progress    ImportProgress `json:"progress"`
	Result      *ImportResult  `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}
