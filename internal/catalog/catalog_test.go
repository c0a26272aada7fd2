package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

type fakeWriter struct {
	products map[uuid.UUID]*models.Product
	assets   map[uuid.UUID][]*models.ReferenceAsset
	intents  map[uuid.UUID]*models.RenderingIntent
	failOn   string
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		products: map[uuid.UUID]*models.Product{},
		assets:   map[uuid.UUID][]*models.ReferenceAsset{},
		intents:  map[uuid.UUID]*models.RenderingIntent{},
	}
}

func (w *fakeWriter) CreateProduct(_ context.Context, p *models.Product) error {
	if w.failOn == p.Title {
		return errors.New("connection reset")
	}
	if _, ok := w.products[p.ID]; ok {
		return store.ErrDuplicateKey
	}
	w.products[p.ID] = p
	return nil
}

func (w *fakeWriter) ReplaceReferenceAssets(_ context.Context, id uuid.UUID, assets []*models.ReferenceAsset) error {
	w.assets[id] = assets
	return nil
}

func (w *fakeWriter) CreateIntent(_ context.Context, in *models.RenderingIntent) error {
	if _, ok := w.intents[in.ID]; ok {
		return store.ErrDuplicateKey
	}
	w.intents[in.ID] = in
	return nil
}

const yamlCatalog = `
products:
  - id: 6f1c1a56-3c3e-4d7b-9a57-0d3f7e2b9a10
    title: Walnut Desk
    external_id: SKU-991
    category: furniture
    assets:
      - variant: front
        path: photos/desk-front.jpg
      - variant: side
        url: https://cdn.example.com/desk-side.jpg
intents:
  - kind: template
    name: Lifestyle
    prompt_template: "{{product_title}} in a {{scene}}"
    variables:
      - name: scene
        kind: choice
        required: true
        options: [kitchen, office]
      - name: product_title
        kind: auto
        source: title
  - kind: image_type
    name: Turntable
    media_type: video
    prompt_template: "A slow 360 turn of {{title}}"
`

func TestParse_YAML(t *testing.T) {
	f, err := Parse(strings.NewReader(yamlCatalog), "seed.yaml")
	require.NoError(t, err)
	require.Len(t, f.Products, 1)
	assert.Equal(t, "SKU-991", f.Products[0].ExternalID)
	assert.Len(t, f.Products[0].Assets, 2)
	require.Len(t, f.Intents, 2)
	assert.Equal(t, []string{"kitchen", "office"}, f.Intents[0].Variables[0].Options)
}

func TestParse_JSON(t *testing.T) {
	f, err := Parse(strings.NewReader(`{"products":[{"title":"Mug","assets":[{"url":"gs://b/mug.png"}]}]}`), "seed.json")
	require.NoError(t, err)
	assert.Equal(t, "Mug", f.Products[0].Title)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"products":[{"name":"Mug"}]}`), "seed.json")
	assert.ErrorIs(t, err, ErrInvalidCatalog)

	_, err = Parse(strings.NewReader("products:\n  - name: Mug\n"), "seed.yml")
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestLoad_WritesEverything(t *testing.T) {
	f, err := Parse(strings.NewReader(yamlCatalog), "seed.yaml")
	require.NoError(t, err)
	w := newFakeWriter()

	sum, err := Load(context.Background(), w, f, "/srv/catalog", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.ProductsCreated)
	assert.Equal(t, 2, sum.AssetsWritten)
	assert.Equal(t, 2, sum.IntentsCreated)

	pid := uuid.MustParse("6f1c1a56-3c3e-4d7b-9a57-0d3f7e2b9a10")
	require.Contains(t, w.products, pid)
	assert.Equal(t, models.ProductStatusNotStarted, w.products[pid].Status)

	assets := w.assets[pid]
	require.Len(t, assets, 2)
	assert.Equal(t, 0, assets[0].Position)
	assert.Equal(t, models.LocalLocation(filepath.Join("/srv/catalog", "photos/desk-front.jpg")), assets[0].Location)
	assert.Equal(t, 1, assets[1].Position)
	assert.Equal(t, models.RemoteLocation("https://cdn.example.com/desk-side.jpg"), assets[1].Location)

	var video *models.RenderingIntent
	for _, in := range w.intents {
		if in.Name == "Turntable" {
			video = in
		}
	}
	require.NotNil(t, video)
	assert.Equal(t, models.MediaTypeVideo, video.MediaType)
	assert.Empty(t, video.Variables)
}

func TestLoad_ResyncReplacesAssets(t *testing.T) {
	w := newFakeWriter()
	id := uuid.NewString()
	first := &File{Products: []Product{{ID: id, Title: "Lamp", Assets: []Asset{{URL: "https://x/a.png"}, {URL: "https://x/b.png"}}}}}
	_, err := Load(context.Background(), w, first, ".", logger.Nop())
	require.NoError(t, err)

	second := &File{Products: []Product{{ID: id, Title: "Lamp", Assets: []Asset{{URL: "https://x/c.png"}}}}}
	sum, err := Load(context.Background(), w, second, ".", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, sum.ProductsCreated)
	assert.Equal(t, 1, sum.ProductsResynced)

	assets := w.assets[uuid.MustParse(id)]
	require.Len(t, assets, 1)
	assert.Equal(t, "https://x/c.png", assets[0].Location.Value)
}

func TestLoad_ExistingIntentIsKept(t *testing.T) {
	w := newFakeWriter()
	f := &File{Intents: []Intent{{ID: uuid.NewString(), Kind: "image_type", Name: "Hero", PromptTemplate: "{{title}}"}}}
	_, err := Load(context.Background(), w, f, ".", logger.Nop())
	require.NoError(t, err)

	sum, err := Load(context.Background(), w, f, ".", logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.IntentsExisting)
	assert.Len(t, sum.IntentIDs, 1)
}

func TestLoad_ValidatesBeforeWriting(t *testing.T) {
	cases := map[string]*File{
		"missing title":       {Products: []Product{{Assets: []Asset{{URL: "https://x"}}}}},
		"asset without src":   {Products: []Product{{Title: "A", Assets: []Asset{{Variant: "front"}}}}},
		"asset with both":     {Products: []Product{{Title: "A", Assets: []Asset{{URL: "https://x", Path: "a.png"}}}}},
		"ftp url":             {Products: []Product{{Title: "A", Assets: []Asset{{URL: "ftp://x/a.png"}}}}},
		"bad product id":      {Products: []Product{{ID: "p-1", Title: "A"}}},
		"bad kind":            {Intents: []Intent{{Kind: "preset", Name: "X", PromptTemplate: "x"}}},
		"image type vars":     {Intents: []Intent{{Kind: "image_type", Name: "X", PromptTemplate: "x", Variables: []Variable{{Name: "a", Kind: "text"}}}}},
		"empty prompt":        {Intents: []Intent{{Kind: "template", Name: "X"}}},
		"bad media":           {Intents: []Intent{{Kind: "template", Name: "X", PromptTemplate: "x", MediaType: "gif"}}},
		"choice w/o options":  {Intents: []Intent{{Kind: "template", Name: "X", PromptTemplate: "x", Variables: []Variable{{Name: "a", Kind: "choice"}}}}},
		"auto w/o source":     {Intents: []Intent{{Kind: "template", Name: "X", PromptTemplate: "x", Variables: []Variable{{Name: "a", Kind: "auto"}}}}},
		"duplicate variables": {Intents: []Intent{{Kind: "template", Name: "X", PromptTemplate: "x", Variables: []Variable{{Name: "a", Kind: "text"}, {Name: "a", Kind: "text"}}}}},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			// A valid product ahead of the bad entry must not be written.
			f.Products = append([]Product{{Title: "Valid", Assets: []Asset{{URL: "https://x/v.png"}}}}, f.Products...)
			w := newFakeWriter()
			_, err := Load(context.Background(), w, f, ".", logger.Nop())
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Empty(t, w.products)
			assert.Empty(t, w.intents)
		})
	}
}

func TestLoad_StoreErrorStops(t *testing.T) {
	w := newFakeWriter()
	w.failOn = "Broken"
	f := &File{Products: []Product{{Title: "Fine"}, {Title: "Broken"}, {Title: "Never"}}}
	sum, err := Load(context.Background(), w, f, ".", logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken")
	assert.Equal(t, 1, sum.ProductsCreated)
	assert.Len(t, w.products, 1)
}
