package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kiranshivaraju/catalogstudio/internal/analytics"
	"github.com/kiranshivaraju/catalogstudio/internal/cache"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var (
	ErrInvalidRequest = errors.New("invalid generation request")
	ErrIntentNotFound = errors.New("rendering intent not found")
)

const (
	defaultProgressTTL = 24 * time.Hour
	haltedReason       = "halted before dispatch"
	finishTimeout      = 30 * time.Second
)

// JobRequest asks for every (product, intent) pair to be generated.
type JobRequest struct {
	ProductIDs         []uuid.UUID
	IntentIDs          []uuid.UUID
	VariantFilter      string
	CustomInstructions string
	Variables          map[string]string
	Actor              string
}

type SubmitResult struct {
	JobID        uuid.UUID        `json:"job_id"`
	Status       models.JobStatus `json:"status"`
	TotalUnits   int              `json:"total_units"`
	SkippedCount int              `json:"skipped_count"`
}

type OrchestratorConfig struct {
	Concurrency int
	ProgressTTL time.Duration
}

// Orchestrator fans a job out into units of work and runs them in the
// background with bounded concurrency.
type Orchestrator struct {
	store    store.Store
	cache    cache.Cache
	executor *Executor
	sink     analytics.Sink
	cfg      OrchestratorConfig
	log      *logger.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewOrchestrator(st store.Store, c cache.Cache, exec *Executor, sink analytics.Sink, cfg OrchestratorConfig, log *logger.Logger) *Orchestrator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ProgressTTL <= 0 {
		cfg.ProgressTTL = defaultProgressTTL
	}
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Orchestrator{
		store:    st,
		cache:    c,
		executor: exec,
		sink:     sink,
		cfg:      cfg,
		log:      log.With("component", "orchestrator"),
		baseCtx:  context.Background(),
	}
}

// Submit validates the request, persists the job and starts it. It returns
// as soon as the job row exists; units run after Submit returns.
func (o *Orchestrator) Submit(ctx context.Context, req JobRequest) (*SubmitResult, error) {
	if len(req.IntentIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one intent is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Actor) == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalidRequest)
	}

	intentIDs := dedupe(req.IntentIDs)
	intents := make([]*models.RenderingIntent, 0, len(intentIDs))
	for _, id := range intentIDs {
		intent, err := o.store.GetIntent(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
		}
		if err != nil {
			return nil, fmt.Errorf("load intent %s: %w", id, err)
		}
		intents = append(intents, intent)
	}

	productIDs := dedupe(req.ProductIDs)
	products, err := o.store.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	skipped := len(productIDs) - len(products)

	eligible := make([]*models.Product, 0, len(products))
	for _, p := range products {
		assets, err := o.store.ListReferenceAssets(ctx, p.ID, req.VariantFilter)
		if err != nil {
			return nil, fmt.Errorf("list reference assets for %s: %w", p.ID, err)
		}
		if len(assets) == 0 {
			skipped++
			continue
		}
		eligible = append(eligible, p)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:            uuid.New(),
		ProductIDs:    productIDs,
		IntentIDs:     intentIDs,
		VariantFilter: req.VariantFilter,
		Status:        models.JobStatusProcessing,
		TotalImages:   len(eligible) * len(intents),
		Actor:         req.Actor,
		StartedAt:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if job.TotalImages == 0 {
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	log := o.log.With("job_id", job.ID)
	log.Info("job submitted",
		"actor", job.Actor, "total_units", job.TotalImages, "skipped_products", skipped, "variant", job.VariantFilter)

	o.publish(ctx, job)
	if err := o.sink.IncrementDaily(ctx, analytics.MetricJobsSubmitted, 1); err != nil {
		log.Warn("failed to record analytics", "metric", analytics.MetricJobsSubmitted, "error", err)
	}

	if job.TotalImages > 0 {
		units := make([]UnitRequest, 0, job.TotalImages)
		jobID := job.ID
		for _, p := range eligible {
			for _, intent := range intents {
				units = append(units, UnitRequest{
					Product:            p,
					Intent:             intent,
					VariantFilter:      req.VariantFilter,
					CustomInstructions: req.CustomInstructions,
					Variables:          req.Variables,
					JobID:              &jobID,
					Actor:              req.Actor,
				})
			}
		}
		o.wg.Add(1)
		go o.run(job, units)
	}

	return &SubmitResult{
		JobID:        job.ID,
		Status:       job.Status,
		TotalUnits:   job.TotalImages,
		SkippedCount: skipped,
	}, nil
}

// Wait blocks until every job started by Submit has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// progress keeps the cache snapshot from moving backwards when outcomes
// are recorded out of order.
type progress struct {
	mu   sync.Mutex
	seen int
}

func (o *Orchestrator) run(job *models.Job, units []UnitRequest) {
	defer o.wg.Done()
	log := o.log.With("job_id", job.ID)

	ctx, cancel := context.WithCancel(o.baseCtx)
	defer cancel()

	var runErr error
	defer func() {
		if r := recover(); r != nil {
			log.Error("job runner panicked", "panic", r)
			runErr = fmt.Errorf("panic: %v", r)
		}
		o.finish(job.ID, runErr, log)
	}()

	var prog progress
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for _, unit := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			var result UnitResult
			halted, err := o.store.IsJobHaltRequested(gctx, job.ID)
			if err != nil {
				return fmt.Errorf("check halt flag: %w", err)
			}
			if halted {
				result = UnitResult{Failure: &Failure{Step: StepDispatch, Kind: FailureHalted, Reason: haltedReason}}
			} else {
				result = o.executor.Execute(gctx, unit)
			}
			return o.record(gctx, job.ID, unit.Product, result, &prog, log)
		})
	}

	runErr = g.Wait()
}

// record applies one unit's outcome to the job counters. An error here is
// infrastructure-fatal for the job.
func (o *Orchestrator) record(ctx context.Context, jobID uuid.UUID, product *models.Product, res UnitResult, prog *progress, log *logger.Logger) error {
	line := ""
	if res.Failure != nil {
		line = fmt.Sprintf("%s: %s", singleLine(product.Label()), singleLine(res.Failure.Reason))
	}
	// Completed work is counted even if a sibling already failed the job.
	updated, err := o.store.RecordUnitOutcome(context.WithoutCancel(ctx), jobID, res.Succeeded(), line)
	if err != nil {
		log.Error("failed to record unit outcome", "product_id", product.ID, "error", err)
		return fmt.Errorf("record unit outcome: %w", err)
	}

	prog.mu.Lock()
	defer prog.mu.Unlock()
	if done := updated.CompletedImages + updated.FailedImages; done >= prog.seen {
		prog.seen = done
		o.publish(ctx, updated)
	}
	return nil
}

func (o *Orchestrator) finish(jobID uuid.UUID, runErr error, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(o.baseCtx, finishTimeout)
	defer cancel()

	status := models.JobStatusCompleted
	line := ""
	if runErr != nil {
		status = models.JobStatusFailed
		line = "infrastructure: " + singleLine(runErr.Error())
	} else {
		current, err := o.store.GetJob(ctx, jobID)
		if err != nil {
			log.Error("failed to load job for finish", "error", err)
			return
		}
		if current.TotalImages > 0 && current.FailedImages == current.TotalImages {
			status = models.JobStatusFailed
		}
	}

	final, err := o.store.FinishJob(ctx, jobID, status, line)
	if err != nil {
		log.Error("failed to finish job", "status", status, "error", err)
		return
	}
	o.publish(ctx, final)
	log.Info("job finished",
		"status", final.Status, "completed", final.CompletedImages, "failed", final.FailedImages, "total", final.TotalImages)
}

// publish writes the job snapshot to the cache. When the write fails the
// previous snapshot is dropped so polls fall through to the store.
func (o *Orchestrator) publish(ctx context.Context, job *models.Job) {
	if o.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	err := o.cache.SetJobProgress(ctx, job.ID, ProgressOf(job), o.cfg.ProgressTTL)
	if err == nil {
		return
	}
	o.log.Warn("failed to cache job progress", "job_id", job.ID, "status", job.Status, "error", err)
	if err := o.cache.Delete(ctx, cache.JobProgressKey(job.ID)); err != nil {
		o.log.Error("failed to drop stale job progress", "job_id", job.ID, "error", err)
	}
}

// ProgressOf converts a job row into its cached snapshot.
func ProgressOf(job *models.Job) cache.JobProgress {
	return cache.JobProgress{
		Status:          string(job.Status),
		TotalImages:     job.TotalImages,
		CompletedImages: job.CompletedImages,
		FailedImages:    job.FailedImages,
		ErrorLog:        job.ErrorEntries(),
		UpdatedAt:       time.Now().UTC(),
	}
}

// singleLine collapses whitespace runs, newlines included, to single spaces.
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
