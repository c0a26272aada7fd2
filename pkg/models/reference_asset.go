package models

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceAsset is a catalog photo attached to a product and used as visual
// input to generation. Re-syncing a product replaces its assets wholesale.
type ReferenceAsset struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	ProductID uuid.UUID `db:"product_id" json:"product_id"`
	Variant   string    `db:"variant"    json:"variant"`
	Position  int       `db:"position"   json:"position"`
	Width     int       `db:"width"      json:"width"`
	Height    int       `db:"height"     json:"height"`
	Location  Location  `db:"-"          json:"location"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
