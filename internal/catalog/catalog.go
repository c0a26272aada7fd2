// Package catalog seeds products, reference assets and rendering intents from
// a JSON or YAML file. Re-loading a product replaces its assets wholesale.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

type File struct {
	Products []Product `json:"products" yaml:"products"`
	Intents  []Intent  `json:"intents"  yaml:"intents"`
}

type Product struct {
	ID         string  `json:"id"          yaml:"id"`
	Title      string  `json:"title"       yaml:"title"`
	ExternalID string  `json:"external_id" yaml:"external_id"`
	Category   string  `json:"category"    yaml:"category"`
	Assets     []Asset `json:"assets"      yaml:"assets"`
}

// Asset sets exactly one of URL (http(s) or gs://) and Path.
type Asset struct {
	ID      string `json:"id"      yaml:"id"`
	Variant string `json:"variant" yaml:"variant"`
	URL     string `json:"url"     yaml:"url"`
	Path    string `json:"path"    yaml:"path"`
	Width   int    `json:"width"   yaml:"width"`
	Height  int    `json:"height"  yaml:"height"`
}

type Intent struct {
	ID             string     `json:"id"              yaml:"id"`
	Kind           string     `json:"kind"            yaml:"kind"`
	Name           string     `json:"name"            yaml:"name"`
	PromptTemplate string     `json:"prompt_template" yaml:"prompt_template"`
	MediaType      string     `json:"media_type"      yaml:"media_type"`
	Variables      []Variable `json:"variables"       yaml:"variables"`
}

type Variable struct {
	Name     string   `json:"name"     yaml:"name"`
	Label    string   `json:"label"    yaml:"label"`
	Kind     string   `json:"kind"     yaml:"kind"`
	Required bool     `json:"required" yaml:"required"`
	Default  string   `json:"default"  yaml:"default"`
	Options  []string `json:"options"  yaml:"options"`
	Source   string   `json:"source"   yaml:"source"`
}

// Parse decodes a catalog. The format follows the file extension: .yaml and
// .yml are YAML, everything else JSON.
func Parse(r io.Reader, filename string) (*File, error) {
	var f File
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
	default:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
	}
	return &f, nil
}

// Writer is the slice of store.Store the loader needs.
type Writer interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	ReplaceReferenceAssets(ctx context.Context, productID uuid.UUID, assets []*models.ReferenceAsset) error
	CreateIntent(ctx context.Context, intent *models.RenderingIntent) error
}

type Summary struct {
	ProductsCreated  int
	ProductsResynced int
	AssetsWritten    int
	IntentsCreated   int
	IntentsExisting  int
	ProductIDs       []uuid.UUID
	IntentIDs        []uuid.UUID
}

// Load validates the whole file, then writes it. Relative asset paths are
// resolved against baseDir. A product whose id already exists keeps its row
// and has its assets replaced; an intent whose id already exists is left as is.
func Load(ctx context.Context, w Writer, f *File, baseDir string, log *logger.Logger) (*Summary, error) {
	products, assets, err := buildProducts(f.Products, baseDir)
	if err != nil {
		return nil, err
	}
	intents, err := buildIntents(f.Intents)
	if err != nil {
		return nil, err
	}

	sum := &Summary{}
	for i, p := range products {
		switch err := w.CreateProduct(ctx, p); {
		case err == nil:
			sum.ProductsCreated++
		case errors.Is(err, store.ErrDuplicateKey):
			sum.ProductsResynced++
		default:
			return sum, fmt.Errorf("product %q: %w", p.Title, err)
		}
		if err := w.ReplaceReferenceAssets(ctx, p.ID, assets[i]); err != nil {
			return sum, fmt.Errorf("assets of product %q: %w", p.Title, err)
		}
		sum.AssetsWritten += len(assets[i])
		sum.ProductIDs = append(sum.ProductIDs, p.ID)
		log.Debug("product loaded", "product_id", p.ID, "assets", len(assets[i]))
	}

	for _, in := range intents {
		switch err := w.CreateIntent(ctx, in); {
		case err == nil:
			sum.IntentsCreated++
		case errors.Is(err, store.ErrDuplicateKey):
			sum.IntentsExisting++
		default:
			return sum, fmt.Errorf("intent %q: %w", in.Name, err)
		}
		sum.IntentIDs = append(sum.IntentIDs, in.ID)
	}

	log.Info("catalog loaded",
		"products_created", sum.ProductsCreated,
		"products_resynced", sum.ProductsResynced,
		"assets", sum.AssetsWritten,
		"intents_created", sum.IntentsCreated)
	return sum, nil
}

func buildProducts(in []Product, baseDir string) ([]*models.Product, [][]*models.ReferenceAsset, error) {
	now := time.Now().UTC()
	products := make([]*models.Product, 0, len(in))
	assets := make([][]*models.ReferenceAsset, 0, len(in))

	for i, p := range in {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			return nil, nil, fmt.Errorf("%w: products[%d]: title is required", ErrInvalidCatalog, i)
		}
		id, err := optionalID(p.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: products[%d]: %v", ErrInvalidCatalog, i, err)
		}
		mp := &models.Product{
			ID:        id,
			Title:     title,
			Category:  strings.TrimSpace(p.Category),
			Status:    models.ProductStatusNotStarted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if ext := strings.TrimSpace(p.ExternalID); ext != "" {
			mp.ExternalID = &ext
		}

		list := make([]*models.ReferenceAsset, 0, len(p.Assets))
		for j, a := range p.Assets {
			loc, err := assetLocation(a, baseDir)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: products[%d].assets[%d]: %v", ErrInvalidCatalog, i, j, err)
			}
			aid, err := optionalID(a.ID)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: products[%d].assets[%d]: %v", ErrInvalidCatalog, i, j, err)
			}
			list = append(list, &models.ReferenceAsset{
				ID:        aid,
				ProductID: id,
				Variant:   strings.TrimSpace(a.Variant),
				Position:  j,
				Width:     a.Width,
				Height:    a.Height,
				Location:  loc,
				CreatedAt: now,
			})
		}
		products = append(products, mp)
		assets = append(assets, list)
	}
	return products, assets, nil
}

func assetLocation(a Asset, baseDir string) (models.Location, error) {
	switch {
	case a.URL != "" && a.Path != "":
		return models.Location{}, fmt.Errorf("set url or path, not both")
	case a.URL != "":
		if !strings.HasPrefix(a.URL, "http://") && !strings.HasPrefix(a.URL, "https://") && !strings.HasPrefix(a.URL, "gs://") {
			return models.Location{}, fmt.Errorf("unsupported url %q", a.URL)
		}
		return models.RemoteLocation(a.URL), nil
	case a.Path != "":
		p := a.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(baseDir, p)
		}
		return models.LocalLocation(filepath.Clean(p)), nil
	default:
		return models.Location{}, fmt.Errorf("url or path is required")
	}
}

func buildIntents(in []Intent) ([]*models.RenderingIntent, error) {
	now := time.Now().UTC()
	out := make([]*models.RenderingIntent, 0, len(in))
	for i, it := range in {
		fail := func(format string, args ...any) error {
			return fmt.Errorf("%w: intents[%d]: %s", ErrInvalidCatalog, i, fmt.Sprintf(format, args...))
		}
		id, err := optionalID(it.ID)
		if err != nil {
			return nil, fail("%v", err)
		}
		if strings.TrimSpace(it.Name) == "" {
			return nil, fail("name is required")
		}
		if strings.TrimSpace(it.PromptTemplate) == "" {
			return nil, fail("prompt_template is required")
		}

		kind := models.IntentKind(it.Kind)
		switch kind {
		case models.IntentKindImageType:
			if len(it.Variables) > 0 {
				return nil, fail("image_type intents take no variables")
			}
		case models.IntentKindTemplate:
		default:
			return nil, fail("kind must be image_type or template, got %q", it.Kind)
		}

		media := models.MediaType(it.MediaType)
		switch media {
		case "":
			media = models.MediaTypeImage
		case models.MediaTypeImage, models.MediaTypeVideo:
		default:
			return nil, fail("media_type must be image or video, got %q", it.MediaType)
		}

		vars := make([]models.VariableDefinition, 0, len(it.Variables))
		seen := make(map[string]bool, len(it.Variables))
		for _, v := range it.Variables {
			def, err := buildVariable(v)
			if err != nil {
				return nil, fail("%v", err)
			}
			if seen[def.Name] {
				return nil, fail("duplicate variable %q", def.Name)
			}
			seen[def.Name] = true
			vars = append(vars, def)
		}

		out = append(out, &models.RenderingIntent{
			ID:             id,
			Kind:           kind,
			Name:           strings.TrimSpace(it.Name),
			PromptTemplate: it.PromptTemplate,
			MediaType:      media,
			Variables:      vars,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return out, nil
}

func buildVariable(v Variable) (models.VariableDefinition, error) {
	def := models.VariableDefinition{
		Name:     strings.TrimSpace(v.Name),
		Label:    v.Label,
		Kind:     models.VariableKind(v.Kind),
		Required: v.Required,
		Default:  v.Default,
		Options:  v.Options,
		Source:   models.FactSource(v.Source),
	}
	if def.Name == "" {
		return def, fmt.Errorf("variable name is required")
	}
	if def.Label == "" {
		def.Label = def.Name
	}
	switch def.Kind {
	case models.VariableKindText:
	case models.VariableKindChoice:
		if len(def.Options) == 0 {
			return def, fmt.Errorf("choice variable %q needs options", def.Name)
		}
	case models.VariableKindAutoFill:
		switch def.Source {
		case models.FactTitle, models.FactCategory, models.FactExternalID:
		default:
			return def, fmt.Errorf("auto variable %q needs source title, category or external_id", def.Name)
		}
	default:
		return def, fmt.Errorf("variable %q: kind must be text, choice or auto", def.Name)
	}
	return def, nil
}

func optionalID(raw string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
