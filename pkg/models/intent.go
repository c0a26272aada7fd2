package models

import (
	"time"

	"github.com/google/uuid"
)

// IntentKind distinguishes plain image types from variable-driven templates.
type IntentKind string

const (
	IntentKindImageType IntentKind = "image_type"
	IntentKindTemplate  IntentKind = "template"
)

// MediaType is the kind of artifact an intent produces.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// VariableKind enumerates how a template variable gets its value.
type VariableKind string

const (
	VariableKindText     VariableKind = "text"
	VariableKindChoice   VariableKind = "choice"
	VariableKindAutoFill VariableKind = "auto"
)

// FactSource names the product fact copied into an auto-filled variable.
type FactSource string

const (
	FactTitle      FactSource = "title"
	FactCategory   FactSource = "category"
	FactExternalID FactSource = "external_id"
)

// RenderingIntent drives one generation request: a prompt template and, for
// templates, the schema of its variables.
type RenderingIntent struct {
	ID             uuid.UUID            `db:"id"              json:"id"`
	Kind           IntentKind           `db:"kind"            json:"kind"`
	Name           string               `db:"name"            json:"name"`
	PromptTemplate string               `db:"prompt_template" json:"prompt_template"`
	MediaType      MediaType            `db:"media_type"      json:"media_type"`
	Variables      []VariableDefinition `db:"variables"       json:"variables,omitempty"`
	CreatedAt      time.Time            `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time            `db:"updated_at"      json:"updated_at"`
}

type VariableDefinition struct {
	Name     string       `json:"name"`
	Label    string       `json:"label"`
	Kind     VariableKind `json:"kind"`
	Required bool         `json:"required"`
	Default  string       `json:"default,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Source   FactSource   `json:"source,omitempty"`
}
