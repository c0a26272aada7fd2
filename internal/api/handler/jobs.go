package handler

import (
	"net/http"

	"github.com/kiranshivaraju/catalogstudio/internal/api/middleware"
	"github.com/kiranshivaraju/catalogstudio/internal/api/response"
	"github.com/kiranshivaraju/catalogstudio/internal/generation"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
)

type submitJobRequest struct {
	ProductIDs         []string          `json:"product_ids"`
	IntentIDs          []string          `json:"intent_ids"`
	VariantFilter      string            `json:"variant_filter"`
	CustomInstructions string            `json:"custom_instructions"`
	Variables          map[string]string `json:"variables"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitJobHandler(svc JobService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := middleware.GetActor(r)
		if !ok {
			response.Error(w, response.CodeInvalidToken, "Missing actor", nil)
			return
		}

		var req submitJobRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if len(req.ProductIDs) == 0 {
			response.Error(w, response.CodeInvalidRequest, "product_ids is required", nil)
			return
		}
		if len(req.IntentIDs) == 0 {
			response.Error(w, response.CodeInvalidRequest, "intent_ids is required", nil)
			return
		}
		productIDs, err := parseUUIDs(req.ProductIDs)
		if err != nil {
			response.Error(w, response.CodeInvalidProductID, "Invalid product id format", nil)
			return
		}
		intentIDs, err := parseUUIDs(req.IntentIDs)
		if err != nil {
			response.Error(w, response.CodeInvalidIntentID, "Invalid intent id format", nil)
			return
		}

		res, err := svc.SubmitJob(r.Context(), generation.JobRequest{
			ProductIDs:         productIDs,
			IntentIDs:          intentIDs,
			VariantFilter:      req.VariantFilter,
			CustomInstructions: req.CustomInstructions,
			Variables:          req.Variables,
			Actor:              actor,
		})
		if err != nil {
			log.Error("submit job failed", "actor", actor, "error", err)
			writeServiceError(w, err)
			return
		}

		response.Accepted(w, res)
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(svc JobService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathUUID(w, r, "jobID", response.CodeInvalidJobID, "job ID")
		if !ok {
			return
		}
		st, err := svc.GetJobStatus(r.Context(), jobID)
		if err != nil {
			if !isClientError(err) {
				log.Error("get job status failed", "job_id", jobID, "error", err)
			}
			writeServiceError(w, err)
			return
		}
		response.JSON(w, st)
	}
}

// NewHaltJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/halt.
func NewHaltJobHandler(svc JobService, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, ok := pathUUID(w, r, "jobID", response.CodeInvalidJobID, "job ID")
		if !ok {
			return
		}
		if err := svc.HaltJob(r.Context(), jobID); err != nil {
			if !isClientError(err) {
				log.Error("halt job failed", "job_id", jobID, "error", err)
			}
			writeServiceError(w, err)
			return
		}
		response.Accepted(w, map[string]string{"job_id": jobID.String(), "halt": "requested"})
	}
}
