package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/api/middleware"
	"github.com/kiranshivaraju/catalogstudio/internal/api/response"
	"github.com/kiranshivaraju/catalogstudio/internal/generation"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
)

type generateRequest struct {
	ProductID          string            `json:"product_id"`
	IntentID           string            `json:"intent_id"`
	ReferenceAssetID   *string           `json:"reference_asset_id"`
	BaseArtifactID     *string           `json:"base_artifact_id"`
	ParentArtifactID   *string           `json:"parent_artifact_id"`
	CustomInstructions string            `json:"custom_instructions"`
	Variables          map[string]string `json:"variables"`
}

type generateFailure struct {
	Failure    *generation.Failure `json:"failure"`
	ArtifactID *uuid.UUID          `json:"artifact_id,omitempty"`
	Version    int                 `json:"version,omitempty"`
}

// NewGenerateHandler returns an http.HandlerFunc for POST /api/v1/generate.
// It blocks until the artifact is stored or rejected.
func NewGenerateHandler(svc SingleGenerator, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.GetActor(r)
		if !ok {
			response.Error(w, response.CodeInvalidToken, "Missing actor", nil)
			return
		}

		var req generateRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		productID, err := uuid.Parse(req.ProductID)
		if err != nil {
			response.Error(w, response.CodeInvalidProductID, "Invalid product_id format", nil)
			return
		}
		intentID, err := uuid.Parse(req.IntentID)
		if err != nil {
			response.Error(w, response.CodeInvalidIntentID, "Invalid intent_id format", nil)
			return
		}

		var hints generation.Hints
		for _, h := range []struct {
			raw  *string
			dst  **uuid.UUID
			name string
		}{
			{req.ReferenceAssetID, &hints.ReferenceAssetID, "reference_asset_id"},
			{req.BaseArtifactID, &hints.BaseArtifactID, "base_artifact_id"},
			{req.ParentArtifactID, &hints.ParentArtifactID, "parent_artifact_id"},
		} {
			id, err := parseOptionalUUID(h.raw)
			if err != nil {
				response.Error(w, response.CodeInvalidRequest, "Invalid "+h.name+" format", nil)
				return
			}
			*h.dst = id
		}

		artifact, failure, err := svc.GenerateSingle(r.Context(), generation.SingleRequest{
			ProductID:          productID,
			IntentID:           intentID,
			Hints:              hints,
			CustomInstructions: req.CustomInstructions,
			Variables:          req.Variables,
			Actor:              actor,
		})
		if err != nil {
			if !isClientError(err) {
				log.Error("generate failed", "product_id", productID, "intent_id", intentID, "error", err)
			}
			writeServiceError(w, err)
			return
		}

		if failure != nil {
			details := generateFailure{Failure: failure}
			if artifact != nil {
				details.ArtifactID = &artifact.ID
				details.Version = artifact.Version
			}
			code := response.CodeGenerationFailed
			if failure.Kind == generation.FailureTimeout {
				code = response.CodeGenerationTimeout
			}
			response.Error(w, code, failure.Reason, details)
			return
		}

		response.Created(w, artifact)
	}
}
