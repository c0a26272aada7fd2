// Package models contains shared data models used across the catalogstudio codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ProductStatus tracks how far a product has progressed through generation.
// Transitions only move forward.
type ProductStatus string

const (
	ProductStatusNotStarted ProductStatus = "NOT_STARTED"
	ProductStatusInProgress ProductStatus = "IN_PROGRESS"
	ProductStatusCompleted  ProductStatus = "COMPLETED"
)

// Product is a catalog entity. Products and their reference assets are written
// by catalog sync; the generation core only reads them and advances Status.
type Product struct {
	ID         uuid.UUID     `db:"id"          json:"id"`
	Title      string        `db:"title"       json:"title"`
	ExternalID *string       `db:"external_id" json:"external_id,omitempty"`
	Category   string        `db:"category"    json:"category"`
	Status     ProductStatus `db:"status"      json:"status"`
	CreatedAt  time.Time     `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at"  json:"updated_at"`
}

// ProductFacts are the product fields available to prompt auto-fill.
type ProductFacts struct {
	Title      string
	Category   string
	ExternalID string
}

func (p *Product) Facts() ProductFacts {
	f := ProductFacts{Title: p.Title, Category: p.Category}
	if p.ExternalID != nil {
		f.ExternalID = *p.ExternalID
	}
	return f
}

// Label returns the identifier used in operator-facing error logs.
func (p *Product) Label() string {
	if p.Title != "" {
		return p.Title
	}
	return p.ID.String()
}
