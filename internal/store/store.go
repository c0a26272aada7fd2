package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrInvalidTransition = errors.New("invalid status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProducts(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error)
	// AdvanceProductStatus moves a product from one status to another and
	// reports whether a row changed. Products not in `from` are left alone.
	AdvanceProductStatus(ctx context.Context, id uuid.UUID, from, to models.ProductStatus) (bool, error)

	GetReferenceAsset(ctx context.Context, id uuid.UUID) (*models.ReferenceAsset, error)
	// ListReferenceAssets returns a product's assets ordered by position. An
	// empty variant matches every asset.
	ListReferenceAssets(ctx context.Context, productID uuid.UUID, variant string) ([]*models.ReferenceAsset, error)
	ReplaceReferenceAssets(ctx context.Context, productID uuid.UUID, assets []*models.ReferenceAsset) error

	CreateIntent(ctx context.Context, intent *models.RenderingIntent) error
	GetIntent(ctx context.Context, id uuid.UUID) (*models.RenderingIntent, error)

	// CreateArtifact returns ErrDuplicateKey when (product, intent, version)
	// is already taken.
	CreateArtifact(ctx context.Context, a *models.Artifact) error
	// CreateArtifactNextVersion assigns a.Version atomically and inserts a.
	CreateArtifactNextVersion(ctx context.Context, a *models.Artifact) error
	GetArtifact(ctx context.Context, id uuid.UUID) (*models.Artifact, error)
	// FinalizeArtifact applies the terminal update to an artifact that is
	// still GENERATING. Anything else returns ErrInvalidTransition.
	FinalizeArtifact(ctx context.Context, id uuid.UUID, upd models.ArtifactUpdate) error
	ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*models.Artifact, error)

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// RecordUnitOutcome atomically bumps one counter of a PROCESSING job and
	// appends errorLine to the log when it is non-empty.
	RecordUnitOutcome(ctx context.Context, id uuid.UUID, succeeded bool, errorLine string) (*models.Job, error)
	FinishJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errorLine string) (*models.Job, error)
	RequestJobHalt(ctx context.Context, id uuid.UUID) error
	IsJobHaltRequested(ctx context.Context, id uuid.UUID) (bool, error)
}

type ArtifactFilter struct {
	ProductID uuid.UUID
	IntentID  *uuid.UUID
	JobID     *uuid.UUID
}
