package generation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/media/mock"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

func completedArtifact(t *testing.T, f *fixture, product *models.Product, intent *models.RenderingIntent, assetID *uuid.UUID) *models.Artifact {
	t.Helper()
	data, err := mock.SolidPNG("artifact", 8, 8)
	require.NoError(t, err)
	loc, err := f.files.Save(context.Background(), "products/"+uuid.NewString()+".png", data, "image/png")
	require.NoError(t, err)
	a := &models.Artifact{
		ID:               uuid.New(),
		ProductID:        product.ID,
		IntentID:         intent.ID,
		ReferenceAssetID: assetID,
		Version:          1,
		Status:           models.ArtifactStatusCompleted,
		MediaType:        models.MediaTypeImage,
		Location:         loc,
		Actor:            "tester",
	}
	require.NoError(t, f.store.CreateArtifact(context.Background(), a))
	return a
}

func TestResolve_ExplicitAssetWins(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front", "back")
	intent := f.addIntent(t, "studio shot", models.MediaTypeImage)
	back, err := f.store.ListReferenceAssets(context.Background(), p.ID, "back")
	require.NoError(t, err)
	base := completedArtifact(t, f, p, intent, nil)

	res, err := f.executor.resolver.Resolve(context.Background(), p, Hints{
		ReferenceAssetID: &back[0].ID,
		BaseArtifactID:   &base.ID,
	}, "")
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, SourceAsset, res.Source)
	require.NotNil(t, res.ReferenceAssetID)
	assert.Equal(t, back[0].ID, *res.ReferenceAssetID)
	assert.Nil(t, res.ParentID)
	assert.False(t, res.TextOnly())
	assert.Equal(t, "image/png", res.Reference.MIMEType)
}

func TestResolve_AssetOfAnotherProduct(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front")
	other := f.addProduct(t, "Wool Scarf", "front")
	foreign := f.firstAsset(t, other.ID)

	_, err := f.executor.resolver.Resolve(context.Background(), p, Hints{ReferenceAssetID: &foreign.ID}, "")
	require.ErrorIs(t, err, ErrResolution)
	assert.Contains(t, err.Error(), "another product")
}

func TestResolve_MissingAsset(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front")
	missing := uuid.New()

	_, err := f.executor.resolver.Resolve(context.Background(), p, Hints{ReferenceAssetID: &missing}, "")
	require.ErrorIs(t, err, ErrResolution)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolve_BaseArtifactPropagatesReferenceAsset(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front")
	intent := f.addIntent(t, "studio shot", models.MediaTypeImage)
	asset := f.firstAsset(t, p.ID)
	base := completedArtifact(t, f, p, intent, &asset.ID)

	res, err := f.executor.resolver.Resolve(context.Background(), p, Hints{BaseArtifactID: &base.ID}, "")
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, SourceBase, res.Source)
	require.NotNil(t, res.ReferenceAssetID)
	assert.Equal(t, asset.ID, *res.ReferenceAssetID)
	assert.Nil(t, res.ParentID)
}

func TestResolve_ParentArtifactSetsParent(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front")
	intent := f.addIntent(t, "studio shot", models.MediaTypeImage)
	asset := f.firstAsset(t, p.ID)
	parent := completedArtifact(t, f, p, intent, &asset.ID)

	res, err := f.executor.resolver.Resolve(context.Background(), p, Hints{ParentArtifactID: &parent.ID}, "")
	require.NoError(t, err)
	defer res.Release()

	assert.Equal(t, SourceParent, res.Source)
	require.NotNil(t, res.ParentID)
	assert.Equal(t, parent.ID, *res.ParentID)
	require.NotNil(t, res.ReferenceAssetID)
	assert.Equal(t, asset.ID, *res.ReferenceAssetID)
}

func TestResolve_RejectedArtifactCannotBeBase(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front")
	intent := f.addIntent(t, "studio shot", models.MediaTypeImage)
	a := &models.Artifact{
		ID: uuid.New(), ProductID: p.ID, IntentID: intent.ID, Version: 1,
		Status: models.ArtifactStatusRejected, MediaType: models.MediaTypeImage,
	}
	require.NoError(t, f.store.CreateArtifact(context.Background(), a))

	_, err := f.executor.resolver.Resolve(context.Background(), p, Hints{BaseArtifactID: &a.ID}, "")
	require.ErrorIs(t, err, ErrResolution)
}

func TestResolve_CatalogFallbackHonorsVariant(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt", "front", "back")
	back, err := f.store.ListReferenceAssets(context.Background(), p.ID, "back")
	require.NoError(t, err)

	res, err := f.executor.resolver.Resolve(context.Background(), p, Hints{}, "back")
	require.NoError(t, err)
	defer res.Release()
	assert.Equal(t, SourceCatalog, res.Source)
	assert.Equal(t, back[0].ID, *res.ReferenceAssetID)

	all, err := f.executor.resolver.Resolve(context.Background(), p, Hints{}, "")
	require.NoError(t, err)
	defer all.Release()
	assert.Equal(t, f.firstAsset(t, p.ID).ID, *all.ReferenceAssetID)
}

func TestResolve_TextOnlyWithoutAssets(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct(t, "Linen Shirt")

	res, err := f.executor.resolver.Resolve(context.Background(), p, Hints{}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceTextOnly, res.Source)
	assert.True(t, res.TextOnly())
	assert.Nil(t, res.ReferenceAssetID)
	assert.NoError(t, res.Release())
}

func TestResolve_RemoteReferenceReleasesScratch(t *testing.T) {
	png, err := mock.SolidPNG("remote", 8, 8)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	st := newMockStore()
	scratch := t.TempDir()
	mat, err := artifacts.NewMaterializer(scratch, logger.Nop())
	require.NoError(t, err)
	r := NewResolver(st, mat, logger.Nop())

	p := &models.Product{ID: uuid.New(), Title: "Remote Tee", Status: models.ProductStatusNotStarted}
	require.NoError(t, st.CreateProduct(context.Background(), p))
	require.NoError(t, st.ReplaceReferenceAssets(context.Background(), p.ID, []*models.ReferenceAsset{
		{ID: uuid.New(), Variant: "front", Location: models.RemoteLocation(srv.URL + "/tee.png")},
	}))

	res, err := r.Resolve(context.Background(), p, Hints{}, "")
	require.NoError(t, err)
	assert.Equal(t, png, res.Reference.Data)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, res.Release())
	require.NoError(t, res.Release())
	entries, err = os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
