package generation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var ErrVersionConflict = errors.New("could not allocate a unique artifact version")

// VersionAllocator inserts artifacts with the next free version for their
// (product, intent) pair. Rejected attempts take a version too, so the
// completed artifacts of a pair may have gaps between their versions.
type VersionAllocator struct {
	store       store.Store
	maxAttempts int
	backoff     time.Duration
	log         *logger.Logger
}

func NewVersionAllocator(st store.Store, maxAttempts int, log *logger.Logger) *VersionAllocator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &VersionAllocator{
		store:       st,
		maxAttempts: maxAttempts,
		backoff:     10 * time.Millisecond,
		log:         log.With("component", "version_allocator"),
	}
}

// CreateNext sets a.Version and inserts a. On return without error the row
// exists with a version no other artifact of the pair holds. The store
// serializes writers of one pair, so a duplicate only shows up when a row
// was inserted with an explicit version; those are retried.
func (v *VersionAllocator) CreateNext(ctx context.Context, a *models.Artifact) error {
	for attempt := 1; attempt <= v.maxAttempts; attempt++ {
		err := v.store.CreateArtifactNextVersion(ctx, a)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("create artifact: %w", err)
		}

		v.log.Debug("version taken, retrying",
			"product_id", a.ProductID, "intent_id", a.IntentID, "version", a.Version, "attempt", attempt)

		if attempt == v.maxAttempts {
			break
		}
		wait := time.Duration(attempt)*v.backoff + rand.N(v.backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts", ErrVersionConflict, v.maxAttempts)
}
