package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/analytics"
	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/imaging"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
	"github.com/kiranshivaraju/catalogstudio/pkg/prompt"
)

// FailureKind classifies why a unit of work did not produce an artifact.
type FailureKind string

const (
	FailureResolution FailureKind = "resolution"
	FailureGeneration FailureKind = "generation"
	FailureTimeout    FailureKind = "timeout"
	FailureStorage    FailureKind = "storage"
	FailureInternal   FailureKind = "internal"
	FailureHalted     FailureKind = "halted"
)

// Step names the stage a unit of work was in when it stopped.
type Step string

const (
	StepDispatch Step = "dispatch"
	StepResolve  Step = "resolve"
	StepAllocate Step = "allocate"
	StepGenerate Step = "generate"
	StepPersist  Step = "persist"
	StepFinalize Step = "finalize"
	StepPanic    Step = "panic"
)

// Failure is a unit-level failure. It is reported, never raised past the
// executor.
type Failure struct {
	Step   Step        `json:"step"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", f.Step, f.Kind, f.Reason)
}

// UnitRequest is one (product, intent) pair with its per-call inputs.
type UnitRequest struct {
	Product            *models.Product
	Intent             *models.RenderingIntent
	Hints              Hints
	VariantFilter      string
	CustomInstructions string
	Variables          map[string]string
	JobID              *uuid.UUID
	Actor              string
}

// UnitResult holds the artifact row when one was written, and Failure when
// the unit did not complete. Artifact may be nil only if even the REJECTED
// record could not be stored.
type UnitResult struct {
	Artifact *models.Artifact
	Failure  *Failure
}

func (r UnitResult) Succeeded() bool {
	return r.Failure == nil
}

// Executor runs a single unit of work end to end.
type Executor struct {
	store     store.Store
	resolver  *Resolver
	versions  *VersionAllocator
	generator models.MediaGenerator
	artifacts artifacts.Store
	sink      analytics.Sink
	timeout   time.Duration
	log       *logger.Logger
}

type ExecutorDeps struct {
	Store     store.Store
	Resolver  *Resolver
	Versions  *VersionAllocator
	Generator models.MediaGenerator
	Artifacts artifacts.Store
	Sink      analytics.Sink
	Timeout   time.Duration
	Logger    *logger.Logger
}

func NewExecutor(d ExecutorDeps) *Executor {
	sink := d.Sink
	if sink == nil {
		sink = analytics.NopSink{}
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Executor{
		store:     d.Store,
		resolver:  d.Resolver,
		versions:  d.Versions,
		generator: d.Generator,
		artifacts: d.Artifacts,
		sink:      sink,
		timeout:   timeout,
		log:       d.Logger.With("component", "executor"),
	}
}

// ArtifactKey is the object-store key for an artifact's media.
func ArtifactKey(a *models.Artifact, ext string) string {
	return fmt.Sprintf("products/%s/%s/v%d-%s.%s", a.ProductID, a.IntentID, a.Version, a.ID, ext)
}

// Execute resolves the reference, renders the prompt, allocates a version,
// calls the generator and persists the outcome. It never panics and never
// returns an error: every failure ends up in the result and, when the record
// exists, as a REJECTED artifact.
func (e *Executor) Execute(ctx context.Context, req UnitRequest) (result UnitResult) {
	log := e.log.With("product_id", req.Product.ID, "intent_id", req.Intent.ID)
	var artifact *models.Artifact

	defer func() {
		if r := recover(); r != nil {
			log.Error("unit of work panicked", "panic", r)
			f := &Failure{Step: StepPanic, Kind: FailureInternal, Reason: fmt.Sprintf("panic: %v", r)}
			if artifact != nil && artifact.Status == models.ArtifactStatusGenerating {
				e.reject(context.WithoutCancel(ctx), artifact, f)
			}
			result = UnitResult{Artifact: artifact, Failure: f}
		}
	}()

	mediaType := req.Intent.MediaType
	if mediaType == "" {
		mediaType = models.MediaTypeImage
	}
	rendered := e.renderPrompt(req, log)

	now := time.Now().UTC()
	artifact = &models.Artifact{
		ID:        uuid.New(),
		ProductID: req.Product.ID,
		IntentID:  req.Intent.ID,
		JobID:     req.JobID,
		Status:    models.ArtifactStatusGenerating,
		MediaType: mediaType,
		Prompt:    rendered,
		Actor:     req.Actor,
		CreatedAt: now,
		UpdatedAt: now,
	}

	resolution, err := e.resolver.Resolve(ctx, req.Product, req.Hints, req.VariantFilter)
	defer func() {
		if relErr := resolution.Release(); relErr != nil {
			log.Warn("failed to release reference", "error", relErr)
		}
	}()
	if err != nil {
		f := &Failure{Step: StepResolve, Kind: FailureResolution, Reason: err.Error()}
		reason := f.Reason
		artifact.Status = models.ArtifactStatusRejected
		artifact.FailureReason = &reason
		if createErr := e.versions.CreateNext(ctx, artifact); createErr != nil {
			log.Error("failed to record rejected artifact", "error", createErr)
			return UnitResult{Failure: f}
		}
		e.countFailure(ctx, log)
		return UnitResult{Artifact: artifact, Failure: f}
	}
	artifact.ReferenceAssetID = resolution.ReferenceAssetID
	artifact.ParentID = resolution.ParentID

	if err := e.versions.CreateNext(ctx, artifact); err != nil {
		log.Error("failed to allocate artifact version", "error", err)
		f := &Failure{Step: StepAllocate, Kind: FailureInternal, Reason: fmt.Sprintf("allocate version: %v", err)}
		// Nothing was written; the next step must not treat the row as ours.
		artifact = nil
		return UnitResult{Failure: f}
	}
	log = log.With("artifact_id", artifact.ID, "version", artifact.Version)

	out, genErr := e.generate(ctx, models.MediaRequest{
		Prompt:    rendered,
		MediaType: mediaType,
		Reference: resolution.Reference,
	})
	if genErr != nil {
		log.Warn("generation failed", "kind", genErr.Kind, "reason", genErr.Reason)
		e.reject(ctx, artifact, genErr)
		e.countFailure(ctx, log)
		return UnitResult{Artifact: artifact, Failure: genErr}
	}

	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = http.DetectContentType(out.Data)
	}
	width, height := out.Width, out.Height
	if mediaType == models.MediaTypeImage && (width == 0 || height == 0) {
		if info, err := imaging.Probe(out.Data); err == nil {
			width, height = info.Width, info.Height
		} else {
			log.Warn("could not read image dimensions", "error", err)
		}
	}

	key := ArtifactKey(artifact, artifacts.ExtensionFor(mimeType))
	loc, err := e.artifacts.Save(ctx, key, out.Data, mimeType)
	if err != nil {
		f := &Failure{Step: StepPersist, Kind: FailureStorage, Reason: fmt.Sprintf("save media: %v", err)}
		log.Error("failed to persist media", "key", key, "error", err)
		e.reject(ctx, artifact, f)
		e.countFailure(ctx, log)
		return UnitResult{Artifact: artifact, Failure: f}
	}

	upd := models.ArtifactUpdate{
		Status:    models.ArtifactStatusCompleted,
		Location:  loc,
		Width:     width,
		Height:    height,
		SizeBytes: int64(len(out.Data)),
	}
	if err := e.store.FinalizeArtifact(ctx, artifact.ID, upd); err != nil {
		log.Error("failed to finalize artifact", "error", err)
		if delErr := e.artifacts.Delete(context.WithoutCancel(ctx), loc); delErr != nil {
			log.Warn("failed to remove orphaned media", "location", loc.String(), "error", delErr)
		}
		f := &Failure{Step: StepFinalize, Kind: FailureStorage, Reason: fmt.Sprintf("finalize artifact: %v", err)}
		e.reject(ctx, artifact, f)
		e.countFailure(ctx, log)
		return UnitResult{Artifact: artifact, Failure: f}
	}
	artifact.Status = upd.Status
	artifact.Location = upd.Location
	artifact.Width = upd.Width
	artifact.Height = upd.Height
	artifact.SizeBytes = upd.SizeBytes

	advanced, err := e.store.AdvanceProductStatus(ctx, req.Product.ID, models.ProductStatusNotStarted, models.ProductStatusInProgress)
	if err != nil {
		log.Warn("failed to advance product status", "error", err)
	} else if advanced {
		log.Info("product moved to in progress")
	}

	metric := analytics.MetricImagesGenerated
	if mediaType == models.MediaTypeVideo {
		metric = analytics.MetricVideosGenerated
	}
	if err := e.sink.IncrementDaily(ctx, metric, 1); err != nil {
		log.Warn("failed to record analytics", "metric", metric, "error", err)
	}

	log.Info("artifact generated", "location", loc.String(), "size_bytes", upd.SizeBytes)
	return UnitResult{Artifact: artifact}
}

func (e *Executor) renderPrompt(req UnitRequest, log *logger.Logger) string {
	res := prompt.Render(req.Intent.PromptTemplate, req.Variables, req.Product.Facts(), req.Intent.Variables)
	if len(res.Missing) > 0 {
		names := make([]string, 0, len(res.Missing))
		for _, d := range res.Missing {
			names = append(names, d.Name)
		}
		log.Warn("required template variables are empty", "variables", names)
	}
	return prompt.WithInstructions(res.Text, req.CustomInstructions)
}

// generate bounds the generator call by the configured timeout.
func (e *Executor) generate(ctx context.Context, req models.MediaRequest) (models.MediaResult, *Failure) {
	genCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	out, err := e.generator.Generate(genCtx, req)
	if err == nil && len(out.Data) == 0 {
		err = fmt.Errorf("%w: empty payload", models.ErrInvalidResponse)
	}
	if err == nil {
		e.log.Debug("generator returned", "provider", e.generator.Name(), "duration", time.Since(start))
		return out, nil
	}

	timedOut := errors.Is(genCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	if timedOut || errors.Is(err, models.ErrGenerationTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return out, &Failure{
			Step:   StepGenerate,
			Kind:   FailureTimeout,
			Reason: fmt.Sprintf("generation timed out after %s", e.timeout),
		}
	}
	return out, &Failure{Step: StepGenerate, Kind: FailureGeneration, Reason: err.Error()}
}

// reject moves a GENERATING artifact to REJECTED. It uses a context that
// survives cancellation so the record is not left GENERATING.
func (e *Executor) reject(ctx context.Context, a *models.Artifact, f *Failure) {
	reason := f.Reason
	upd := models.ArtifactUpdate{Status: models.ArtifactStatusRejected, FailureReason: &reason}
	if err := e.store.FinalizeArtifact(context.WithoutCancel(ctx), a.ID, upd); err != nil {
		e.log.Error("failed to mark artifact rejected", "artifact_id", a.ID, "error", err)
		return
	}
	a.Status = models.ArtifactStatusRejected
	a.FailureReason = &reason
}

func (e *Executor) countFailure(ctx context.Context, log *logger.Logger) {
	if err := e.sink.IncrementDaily(context.WithoutCancel(ctx), analytics.MetricGenerationFailed, 1); err != nil {
		log.Warn("failed to record analytics", "metric", analytics.MetricGenerationFailed, "error", err)
	}
}
