package generation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/catalogstudio/internal/analytics"
	"github.com/kiranshivaraju/catalogstudio/internal/artifacts"
	"github.com/kiranshivaraju/catalogstudio/internal/cache"
	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/internal/media/mock"
	"github.com/kiranshivaraju/catalogstudio/internal/store"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// --- mocks ---

type versionKey struct {
	product uuid.UUID
	intent  uuid.UUID
	version int
}

// mockStore is an in-memory store.Store with the same uniqueness and
// transition rules as the Postgres implementation.
type mockStore struct {
	mu        sync.Mutex
	products  map[uuid.UUID]*models.Product
	assets    map[uuid.UUID]*models.ReferenceAsset
	intents   map[uuid.UUID]*models.RenderingIntent
	artifacts map[uuid.UUID]*models.Artifact
	versions  map[versionKey]bool
	jobs      map[uuid.UUID]*models.Job

	// hooks
	nextVersionHook   func()
	duplicateOnNext   int
	recordOutcomeErr  error
	finalizeErr       error
	createArtifactErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		products:  map[uuid.UUID]*models.Product{},
		assets:    map[uuid.UUID]*models.ReferenceAsset{},
		intents:   map[uuid.UUID]*models.RenderingIntent{},
		artifacts: map[uuid.UUID]*models.Artifact{},
		versions:  map[versionKey]bool{},
		jobs:      map[uuid.UUID]*models.Job{},
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }
func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error     { return nil }
func (s *mockStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error         { return nil }
func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error)        { return nil, nil }
func (s *mockStore) RevokeAPIKey(_ context.Context, _ uuid.UUID) error              { return nil }
func (s *mockStore) CreateIntent(_ context.Context, i *models.RenderingIntent) error { return s.putIntent(i) }

func (s *mockStore) CreateProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *mockStore) GetProduct(_ context.Context, id uuid.UUID) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *mockStore) GetProducts(_ context.Context, ids []uuid.UUID) ([]*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Product{}
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *mockStore) AdvanceProductStatus(_ context.Context, id uuid.UUID, from, to models.ProductStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

func (s *mockStore) GetReferenceAsset(_ context.Context, id uuid.UUID) (*models.ReferenceAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *mockStore) ListReferenceAssets(_ context.Context, productID uuid.UUID, variant string) ([]*models.ReferenceAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.ReferenceAsset{}
	for _, a := range s.assets {
		if a.ProductID != productID || (variant != "" && a.Variant != variant) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *mockStore) ReplaceReferenceAssets(_ context.Context, productID uuid.UUID, assets []*models.ReferenceAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, a := range s.assets {
		if a.ProductID == productID {
			delete(s.assets, id)
		}
	}
	for _, a := range assets {
		cp := *a
		cp.ProductID = productID
		s.assets[a.ID] = &cp
	}
	return nil
}

func (s *mockStore) putIntent(i *models.RenderingIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *i
	s.intents[i.ID] = &cp
	return nil
}

func (s *mockStore) GetIntent(_ context.Context, id uuid.UUID) (*models.RenderingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.intents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *mockStore) CreateArtifact(_ context.Context, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertArtifact(a)
}

// CreateArtifactNextVersion holds the store lock across the read and the
// insert, like the advisory lock in Postgres.
func (s *mockStore) CreateArtifactNextVersion(_ context.Context, a *models.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextVersionHook != nil {
		s.nextVersionHook()
	}
	if s.duplicateOnNext > 0 {
		s.duplicateOnNext--
		return store.ErrDuplicateKey
	}
	max := 0
	for k := range s.versions {
		if k.product == a.ProductID && k.intent == a.IntentID && k.version > max {
			max = k.version
		}
	}
	a.Version = max + 1
	return s.insertArtifact(a)
}

func (s *mockStore) insertArtifact(a *models.Artifact) error {
	if s.createArtifactErr != nil {
		return s.createArtifactErr
	}
	k := versionKey{a.ProductID, a.IntentID, a.Version}
	if s.versions[k] {
		return store.ErrDuplicateKey
	}
	s.versions[k] = true
	cp := *a
	s.artifacts[a.ID] = &cp
	return nil
}

func (s *mockStore) GetArtifact(_ context.Context, id uuid.UUID) (*models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.artifacts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *mockStore) FinalizeArtifact(_ context.Context, id uuid.UUID, upd models.ArtifactUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalizeErr != nil && upd.Status == models.ArtifactStatusCompleted {
		return s.finalizeErr
	}
	a, ok := s.artifacts[id]
	if !ok {
		return store.ErrNotFound
	}
	if a.Status != models.ArtifactStatusGenerating {
		return store.ErrInvalidTransition
	}
	a.Status = upd.Status
	a.Location = upd.Location
	a.Width, a.Height, a.SizeBytes = upd.Width, upd.Height, upd.SizeBytes
	a.FailureReason = upd.FailureReason
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *mockStore) ListArtifacts(_ context.Context, f store.ArtifactFilter) ([]*models.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*models.Artifact{}
	for _, a := range s.artifacts {
		if a.ProductID != f.ProductID {
			continue
		}
		if f.IntentID != nil && a.IntentID != *f.IntentID {
			continue
		}
		if f.JobID != nil && (a.JobID == nil || *a.JobID != *f.JobID) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *mockStore) CreateJob(_ context.Context, j *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *mockStore) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func appendLine(log, line string) string {
	if line == "" {
		return log
	}
	if log == "" {
		return line
	}
	return log + "\n" + line
}

func (s *mockStore) RecordUnitOutcome(_ context.Context, id uuid.UUID, succeeded bool, line string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordOutcomeErr != nil {
		return nil, s.recordOutcomeErr
	}
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return nil, store.ErrInvalidTransition
	}
	if succeeded {
		j.CompletedImages++
	} else {
		j.FailedImages++
	}
	j.ErrorLog = appendLine(j.ErrorLog, line)
	cp := *j
	return &cp, nil
}

func (s *mockStore) FinishJob(_ context.Context, id uuid.UUID, status models.JobStatus, line string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if j.Status != models.JobStatusProcessing {
		return nil, store.ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = status
	j.CompletedAt = &now
	j.ErrorLog = appendLine(j.ErrorLog, line)
	cp := *j
	return &cp, nil
}

func (s *mockStore) RequestJobHalt(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	j.HaltRequested = true
	return nil
}

func (s *mockStore) IsJobHaltRequested(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return false, store.ErrNotFound
	}
	return j.HaltRequested, nil
}

func (s *mockStore) artifactsFor(productID uuid.UUID) []*models.Artifact {
	list, _ := s.ListArtifacts(context.Background(), store.ArtifactFilter{ProductID: productID})
	return list
}

type mockCache struct {
	mu       sync.Mutex
	progress map[uuid.UUID]cache.JobProgress
	getErr   error
	setErr   func(cache.JobProgress) error
}

func newMockCache() *mockCache {
	return &mockCache{progress: map[uuid.UUID]cache.JobProgress{}}
}

func (c *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *mockCache) Ping(_ context.Context) error                                      { return nil }
func (c *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 0, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.progress {
		if cache.JobProgressKey(id) == key {
			delete(c.progress, id)
		}
	}
	return nil
}

func (c *mockCache) SetJobProgress(_ context.Context, jobID uuid.UUID, p cache.JobProgress, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		if err := c.setErr(p); err != nil {
			return err
		}
	}
	c.progress[jobID] = p
	return nil
}

func (c *mockCache) GetJobProgress(_ context.Context, jobID uuid.UUID) (*cache.JobProgress, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	p, ok := c.progress[jobID]
	if !ok {
		return nil, false, nil
	}
	return &p, true, nil
}

// failingArtifactStore refuses every save.
type failingArtifactStore struct {
	artifacts.Store
}

func (failingArtifactStore) Save(_ context.Context, _ string, _ []byte, _ string) (models.Location, error) {
	return models.Location{}, errors.New("disk full")
}

// --- helpers ---

type fixture struct {
	store     *mockStore
	cache     *mockCache
	sink      *analytics.MemorySink
	files     *artifacts.FileStore
	generator *mock.Generator
	scratch   string
	executor  *Executor
	orch      *Orchestrator
	service   *Service
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	generator   *mock.Generator
	timeout     time.Duration
	concurrency int
	artifacts   artifacts.Store
}

func withGenerator(g *mock.Generator) fixtureOption {
	return func(c *fixtureConfig) { c.generator = g }
}

func withTimeout(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.timeout = d }
}

func withConcurrency(n int) fixtureOption {
	return func(c *fixtureConfig) { c.concurrency = n }
}

func withArtifactStore(s artifacts.Store) fixtureOption {
	return func(c *fixtureConfig) { c.artifacts = s }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{generator: mock.NewGenerator(), timeout: 5 * time.Second, concurrency: 4}
	for _, o := range opts {
		o(&cfg)
	}

	log := logger.Nop()
	st := newMockStore()
	ca := newMockCache()
	sink := analytics.NewMemorySink()

	files, err := artifacts.NewFileStore(t.TempDir())
	require.NoError(t, err)
	var objects artifacts.Store = files
	if cfg.artifacts != nil {
		objects = cfg.artifacts
	}

	scratch := t.TempDir()
	mat, err := artifacts.NewMaterializer(scratch, log, artifacts.WithObjectStore(files))
	require.NoError(t, err)

	exec := NewExecutor(ExecutorDeps{
		Store:     st,
		Resolver:  NewResolver(st, mat, log),
		Versions:  NewVersionAllocator(st, 50, log),
		Generator: cfg.generator,
		Artifacts: objects,
		Sink:      sink,
		Timeout:   cfg.timeout,
		Logger:    log,
	})
	orch := NewOrchestrator(st, ca, exec, sink, OrchestratorConfig{Concurrency: cfg.concurrency}, log)

	return &fixture{
		store:     st,
		cache:     ca,
		sink:      sink,
		files:     files,
		generator: cfg.generator,
		scratch:   scratch,
		executor:  exec,
		orch:      orch,
		service:   NewService(st, ca, orch, exec, log),
	}
}

// addProduct creates a product with one reference asset per variant, each
// backed by a PNG written to the fixture's file store.
func (f *fixture) addProduct(t *testing.T, title string, variants ...string) *models.Product {
	t.Helper()
	p := &models.Product{ID: uuid.New(), Title: title, Category: "apparel", Status: models.ProductStatusNotStarted}
	require.NoError(t, f.store.CreateProduct(context.Background(), p))

	assets := make([]*models.ReferenceAsset, 0, len(variants))
	for i, v := range variants {
		data, err := mock.SolidPNG(title+v, 16, 16)
		require.NoError(t, err)
		loc, err := f.files.Save(context.Background(), "catalog/"+p.ID.String()+"/"+strings.ReplaceAll(v, " ", "_")+".png", data, "image/png")
		require.NoError(t, err)
		assets = append(assets, &models.ReferenceAsset{
			ID: uuid.New(), ProductID: p.ID, Variant: v, Position: i, Width: 16, Height: 16, Location: loc,
		})
	}
	require.NoError(t, f.store.ReplaceReferenceAssets(context.Background(), p.ID, assets))
	return p
}

func (f *fixture) addIntent(t *testing.T, tmpl string, media models.MediaType) *models.RenderingIntent {
	t.Helper()
	i := &models.RenderingIntent{
		ID:             uuid.New(),
		Kind:           models.IntentKindImageType,
		Name:           "lifestyle",
		PromptTemplate: tmpl,
		MediaType:      media,
	}
	require.NoError(t, f.store.CreateIntent(context.Background(), i))
	return i
}

func (f *fixture) firstAsset(t *testing.T, productID uuid.UUID) *models.ReferenceAsset {
	t.Helper()
	list, err := f.store.ListReferenceAssets(context.Background(), productID, "")
	require.NoError(t, err)
	require.NotEmpty(t, list)
	return list[0]
}
