package models

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactStatus is the lifecycle of a generated artifact.
type ArtifactStatus string

const (
	ArtifactStatusGenerating ArtifactStatus = "GENERATING"
	ArtifactStatusCompleted  ArtifactStatus = "COMPLETED"
	ArtifactStatusRejected   ArtifactStatus = "REJECTED"
)

// Artifact is the output of one unit of work. ReferenceAssetID and ParentID
// are weak pointers: the rows they name may have been deleted since.
// Version is unique and increasing per (ProductID, IntentID).
type Artifact struct {
	ID               uuid.UUID      `db:"id"                 json:"id"`
	ProductID        uuid.UUID      `db:"product_id"         json:"product_id"`
	IntentID         uuid.UUID      `db:"intent_id"          json:"intent_id"`
	ReferenceAssetID *uuid.UUID     `db:"reference_asset_id" json:"reference_asset_id,omitempty"`
	ParentID         *uuid.UUID     `db:"parent_id"          json:"parent_id,omitempty"`
	JobID            *uuid.UUID     `db:"job_id"             json:"job_id,omitempty"`
	Version          int            `db:"version"            json:"version"`
	Status           ArtifactStatus `db:"status"             json:"status"`
	MediaType        MediaType      `db:"media_type"         json:"media_type"`
	Prompt           string         `db:"prompt"             json:"prompt"`
	Location         Location       `db:"-"                  json:"location"`
	Width            int            `db:"width"              json:"width"`
	Height           int            `db:"height"             json:"height"`
	SizeBytes        int64          `db:"size_bytes"         json:"size_bytes"`
	FailureReason    *string        `db:"failure_reason"     json:"failure_reason,omitempty"`
	Actor            string         `db:"actor"              json:"actor"`
	CreatedAt        time.Time      `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"         json:"updated_at"`
}

// ArtifactUpdate carries the fields written when an artifact leaves GENERATING.
type ArtifactUpdate struct {
	Status        ArtifactStatus
	Location      Location
	Width         int
	Height        int
	SizeBytes     int64
	FailureReason *string
}
