package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle of a batch job. COMPLETED and FAILED are final.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job tracks a batch of units of work. The API returns job_id on POST /api/v1/jobs;
// clients poll GET /api/v1/jobs/{job_id} until status is COMPLETED or FAILED.
type Job struct {
	ID              uuid.UUID   `db:"id"               json:"id"`
	ProductIDs      []uuid.UUID `db:"product_ids"      json:"product_ids"`
	IntentIDs       []uuid.UUID `db:"intent_ids"       json:"intent_ids"`
	VariantFilter   string      `db:"variant_filter"   json:"variant_filter,omitempty"`
	Status          JobStatus   `db:"status"           json:"status"`
	TotalImages     int         `db:"total_images"     json:"total_images"`
	CompletedImages int         `db:"completed_images" json:"completed_images"`
	FailedImages    int         `db:"failed_images"    json:"failed_images"`
	ErrorLog        string      `db:"error_log"        json:"error_log"`
	Actor           string      `db:"actor"            json:"actor"`
	HaltRequested   bool        `db:"halt_requested"   json:"halt_requested"`
	StartedAt       time.Time   `db:"started_at"       json:"started_at"`
	CompletedAt     *time.Time  `db:"completed_at"     json:"completed_at,omitempty"`
	CreatedAt       time.Time   `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"       json:"updated_at"`
}

// ErrorEntries splits the newline-joined error log.
func (j *Job) ErrorEntries() []string {
	if strings.TrimSpace(j.ErrorLog) == "" {
		return []string{}
	}
	return strings.Split(j.ErrorLog, "\n")
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
