package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// ErrResolution marks a reference that could not be resolved. It fails the
// unit of work it belongs to and nothing else.
var ErrResolution = errors.New("reference resolution failed")

// Hints are the caller's reference choices. When several are set the first
// in field order wins.
type Hints struct {
	ReferenceAssetID *uuid.UUID `json:"reference_asset_id,omitempty"`
	BaseArtifactID   *uuid.UUID `json:"base_artifact_id,omitempty"`
	ParentArtifactID *uuid.UUID `json:"parent_artifact_id,omitempty"`
}

// ReferenceSource records which rule picked the reference.
type ReferenceSource string

const (
	SourceAsset    ReferenceSource = "asset"
	SourceBase     ReferenceSource = "base_artifact"
	SourceParent   ReferenceSource = "parent_artifact"
	SourceCatalog  ReferenceSource = "catalog"
	SourceTextOnly ReferenceSource = "text_only"
)

// Materializer turns a stored location into local bytes.
type Materializer interface {
	Materialize(ctx context.Context, loc models.Location) (*artifacts.Lease, error)
}

// Resolution is the outcome of reference resolution. Reference is nil in
// text-only mode. Release must be called once the unit of work ends.
type Resolution struct {
	Source           ReferenceSource
	ReferenceAssetID *uuid.UUID
	ParentID         *uuid.UUID
	Reference        *models.ReferenceImage

	lease *artifacts.Lease
}

func (r *Resolution) TextOnly() bool {
	return r == nil || r.Reference == nil
}

// Release drops the transient reference buffer. Safe to call repeatedly and
// on a nil Resolution.
func (r *Resolution) Release() error {
	if r == nil {
		return nil
	}
	return r.lease.Release()
}

type Resolver struct {
	store        store.Store
	materializer Materializer
	log          *logger.Logger
}

func NewResolver(st store.Store, m Materializer, log *logger.Logger) *Resolver {
	return &Resolver{store: st, materializer: m, log: log.With("component", "resolver")}
}

// Resolve picks the reference for one unit of work: explicit asset, then base
// artifact, then regeneration parent, then the product's first catalog asset
// (limited to variant when set), and finally text-only generation.
func (r *Resolver) Resolve(ctx context.Context, product *models.Product, hints Hints, variant string) (*Resolution, error) {
	switch {
	case hints.ReferenceAssetID != nil:
		asset, err := r.store.GetReferenceAsset(ctx, *hints.ReferenceAssetID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: reference asset %s not found", ErrResolution, *hints.ReferenceAssetID)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: load reference asset: %v", ErrResolution, err)
		}
		if asset.ProductID != product.ID {
			return nil, fmt.Errorf("%w: reference asset %s belongs to another product", ErrResolution, asset.ID)
		}
		return r.materialize(ctx, SourceAsset, asset.Location, idPtr(asset.ID), nil)

	case hints.BaseArtifactID != nil:
		base, err := r.loadArtifact(ctx, product, *hints.BaseArtifactID)
		if err != nil {
			return nil, err
		}
		return r.materialize(ctx, SourceBase, base.Location, copyID(base.ReferenceAssetID), nil)

	case hints.ParentArtifactID != nil:
		parent, err := r.loadArtifact(ctx, product, *hints.ParentArtifactID)
		if err != nil {
			return nil, err
		}
		return r.materialize(ctx, SourceParent, parent.Location, copyID(parent.ReferenceAssetID), idPtr(parent.ID))
	}

	assets, err := r.store.ListReferenceAssets(ctx, product.ID, variant)
	if err != nil {
		return nil, fmt.Errorf("%w: list reference assets: %v", ErrResolution, err)
	}
	for _, asset := range assets {
		if asset.Location.IsSet() {
			return r.materialize(ctx, SourceCatalog, asset.Location, idPtr(asset.ID), nil)
		}
	}
	return &Resolution{Source: SourceTextOnly}, nil
}

func (r *Resolver) loadArtifact(ctx context.Context, product *models.Product, id uuid.UUID) (*models.Artifact, error) {
	a, err := r.store.GetArtifact(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: artifact %s not found", ErrResolution, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load artifact: %v", ErrResolution, err)
	}
	if a.ProductID != product.ID {
		return nil, fmt.Errorf("%w: artifact %s belongs to another product", ErrResolution, id)
	}
	if a.Status != models.ArtifactStatusCompleted || !a.Location.IsSet() {
		return nil, fmt.Errorf("%w: artifact %s has no stored media (status %s)", ErrResolution, id, a.Status)
	}
	return a, nil
}

func (r *Resolver) materialize(ctx context.Context, source ReferenceSource, loc models.Location, assetID, parentID *uuid.UUID) (*Resolution, error) {
	lease, err := r.materializer.Materialize(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: materialize %s: %v", ErrResolution, loc, err)
	}
	r.log.Debug("reference resolved", "source", source, "location", loc.String())
	return &Resolution{
		Source:           source,
		ReferenceAssetID: assetID,
		ParentID:         parentID,
		Reference:        &models.ReferenceImage{Data: lease.Data, MIMEType: lease.MIMEType},
		lease:            lease,
	}, nil
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}

func copyID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	return idPtr(*id)
}
