// Package handler holds the HTTP handlers. Each handler depends on a narrow
// interface so tests can drive it without infrastructure.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/api/response"
	"github.com/kiranshivaraju/catalogstudio/internal/generation"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// JobService is the batch side of the generation service.
type JobService interface {
	SubmitJob(ctx context.Context, req generation.JobRequest) (*generation.SubmitResult, error)
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*generation.JobStatus, error)
	HaltJob(ctx context.Context, jobID uuid.UUID) error
}

// SingleGenerator runs one unit of work synchronously.
type SingleGenerator interface {
	GenerateSingle(ctx context.Context, req generation.SingleRequest) (*models.Artifact, *generation.Failure, error)
}

type ArtifactLister interface {
	ListArtifacts(ctx context.Context, productID uuid.UUID, intentID *uuid.UUID) ([]*models.Artifact, error)
}

const maxBodyBytes = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		response.Error(w, response.CodeInvalidRequest, "Invalid JSON body", err.Error())
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string, code response.Code, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.Error(w, code, "Invalid "+label+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func parseOptionalUUID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// writeServiceError maps generation errors onto the response envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, generation.ErrInvalidRequest):
		response.Error(w, response.CodeInvalidRequest, err.Error(), nil)
	case errors.Is(err, generation.ErrIntentNotFound):
		response.Error(w, response.CodeIntentNotFound, "Rendering intent not found", nil)
	case errors.Is(err, generation.ErrProductNotFound):
		response.Error(w, response.CodeProductNotFound, "Product not found", nil)
	case errors.Is(err, generation.ErrJobNotFound):
		response.Error(w, response.CodeJobNotFound, "Job not found", nil)
	default:
		response.Error(w, response.CodeInternal, "An unexpected error occurred", nil)
	}
}

func isClientError(err error) bool {
	return errors.Is(err, generation.ErrJobNotFound) ||
		errors.Is(err, generation.ErrProductNotFound) ||
		errors.Is(err, generation.ErrIntentNotFound) ||
		errors.Is(err, generation.ErrInvalidRequest)
}
