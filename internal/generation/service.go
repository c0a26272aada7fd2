// Package generation turns (product, rendering intent) pairs into stored
// marketing artifacts, one at a time or as background batch jobs.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/cache"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrProductNotFound = errors.New("product not found")
)

// JobStatus is what callers see when polling a job.
type JobStatus struct {
	JobID           uuid.UUID        `json:"job_id"`
	Status          models.JobStatus `json:"status"`
	TotalImages     int              `json:"total_images"`
	CompletedImages int              `json:"completed_images"`
	FailedImages    int              `json:"failed_images"`
	ErrorLog        []string         `json:"error_log"`
}

// SingleRequest generates one artifact synchronously.
type SingleRequest struct {
	ProductID          uuid.UUID
	IntentID           uuid.UUID
	Hints              Hints
	CustomInstructions string
	Variables          map[string]string
	Actor              string
}

// Service is the entry point used by the API and the CLI.
type Service struct {
	store        store.Store
	cache        cache.Cache
	orchestrator *Orchestrator
	executor     *Executor
	progressTTL  time.Duration
	log          *logger.Logger
}

func NewService(st store.Store, c cache.Cache, orch *Orchestrator, exec *Executor, log *logger.Logger) *Service {
	return &Service{
		store:        st,
		cache:        c,
		orchestrator: orch,
		executor:     exec,
		progressTTL:  defaultProgressTTL,
		log:          log.With("component", "generation_service"),
	}
}

// SubmitJob starts a batch job and returns its identifier immediately.
func (s *Service) SubmitJob(ctx context.Context, req JobRequest) (*SubmitResult, error) {
	return s.orchestrator.Submit(ctx, req)
}

// GetJobStatus serves the cached snapshot when there is one and falls back
// to the database otherwise. Finished jobs read from the database are cached.
func (s *Service) GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatus, error) {
	if s.cache != nil {
		p, found, err := s.cache.GetJobProgress(ctx, jobID)
		if err != nil {
			s.log.Warn("job progress cache read failed", "job_id", jobID, "error", err)
		} else if found {
			return &JobStatus{
				JobID:           jobID,
				Status:          models.JobStatus(p.Status),
				TotalImages:     p.TotalImages,
				CompletedImages: p.CompletedImages,
				FailedImages:    p.FailedImages,
				ErrorLog:        p.ErrorLog,
			}, nil
		}
	}

	job, err := s.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	// A running job's snapshot is owned by its orchestrator.
	if s.cache != nil && job.Terminal() {
		if err := s.cache.SetJobProgress(ctx, job.ID, ProgressOf(job), s.progressTTL); err != nil {
			s.log.Warn("failed to cache job progress", "job_id", job.ID, "error", err)
		}
	}
	return &JobStatus{
		JobID:           job.ID,
		Status:          job.Status,
		TotalImages:     job.TotalImages,
		CompletedImages: job.CompletedImages,
		FailedImages:    job.FailedImages,
		ErrorLog:        job.ErrorEntries(),
	}, nil
}

// HaltJob stops dispatch of the job's remaining units. Units already
// running finish normally.
func (s *Service) HaltJob(ctx context.Context, jobID uuid.UUID) error {
	err := s.store.RequestJobHalt(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("halt job: %w", err)
	}
	s.log.Info("job halt requested", "job_id", jobID)
	return nil
}

// GenerateSingle runs one unit of work and waits for it. Unit-level
// failures come back as a Failure with a nil error; the error return is
// reserved for bad requests and lookups.
func (s *Service) GenerateSingle(ctx context.Context, req SingleRequest) (*models.Artifact, *Failure, error) {
	if strings.TrimSpace(req.Actor) == "" {
		return nil, nil, fmt.Errorf("%w: actor is required", ErrInvalidRequest)
	}
	product, err := s.store.GetProduct(ctx, req.ProductID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrProductNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get product: %w", err)
	}
	intent, err := s.store.GetIntent(ctx, req.IntentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrIntentNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get intent: %w", err)
	}

	res := s.executor.Execute(ctx, UnitRequest{
		Product:            product,
		Intent:             intent,
		Hints:              req.Hints,
		CustomInstructions: req.CustomInstructions,
		Variables:          req.Variables,
		Actor:              req.Actor,
	})
	return res.Artifact, res.Failure, nil
}

// ListArtifacts returns a product's artifacts, optionally for one intent.
func (s *Service) ListArtifacts(ctx context.Context, productID uuid.UUID, intentID *uuid.UUID) ([]*models.Artifact, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	list, err := s.store.ListArtifacts(ctx, store.ArtifactFilter{ProductID: productID, IntentID: intentID})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return list, nil
}

// Wait blocks until background jobs have finished.
func (s *Service) Wait() {
	s.orchestrator.Wait()
}
