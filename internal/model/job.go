package model

import "time"

// JobStatus is the recalculation job lifecycle state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobTrigger records what started a recalculation.
type JobTrigger string

const (
	TriggerManual          JobTrigger = "manual"
	TriggerReferenceChange JobTrigger = "reference_change"
	TriggerMassRevaluation JobTrigger = "mass_revaluation"
	TriggerZoneAdjustment  JobTrigger = "zone_adjustment"
)

// ChangeType classifies which reference entity changed for a selective
// recalculation.
type ChangeType string

const (
	ChangeZone             ChangeType = "zone"
	ChangeNeighborhood     ChangeType = "neighborhood"
	ChangeCurrentUse       ChangeType = "current_use"
	ChangeTaxationCategory ChangeType = "taxation_category"
	ChangeViewAttribute    ChangeType = "view_attribute"
	ChangeFilter           ChangeType = "filter"
)

// Progress is reported at batch boundaries while a job runs.
type Progress struct {
	TotalCount     int           `json:"total_count"`
	ProcessedCount int           `json:"processed_count"`
	UpdatedCount   int           `json:"updated_count"`
	ErrorCount     int           `json:"error_count"`
	RatePerSecond  float64       `json:"rate_per_second"`
	ETA            time.Duration `json:"eta"`
}

// RecordError captures a single record's calculation failure. These are
// counted and preserved on the job; they never abort a batch.
type RecordError struct {
	PropertyID string `json:"property_id"`
	CardNumber int    `json:"card_number"`
	Message    string `json:"message"`
}

// RecalcJob tracks one recalculation run.
type RecalcJob struct {
	ID             string     `json:"id"`
	MunicipalityID string     `json:"municipality_id"`
	EffectiveYear  int        `json:"effective_year"`
	Trigger        JobTrigger `json:"trigger"`
	ChangeType     ChangeType `json:"change_type,omitempty"`
	ChangeID       string     `json:"change_id,omitempty"`

	Status   JobStatus     `json:"status"`
	Progress Progress      `json:"progress"`
	Errors   []RecordError `json:"errors,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobSummary is returned to callers when a recalculation finishes.
type JobSummary struct {
	JobID          string        `json:"job_id"`
	Status         JobStatus     `json:"status"`
	ProcessedCount int           `json:"processed_count"`
	UpdatedCount   int           `json:"updated_count"`
	ErrorCount     int           `json:"error_count"`
	Duration       time.Duration `json:"duration"`
	Errors         []RecordError `json:"errors,omitempty"`
}
