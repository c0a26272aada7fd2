package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()
	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Products ---

const productColumns = `id, title, external_id, category, status, created_at, updated_at`

func scanProduct(row rowScanner) (*models.Product, error) {
	var p models.Product
	if err := row.Scan(&p.ID, &p.Title, &p.ExternalID, &p.Category, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p *models.Product) error {
	if p.Status == "" {
		p.Status = models.ProductStatusNotStarted
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (id, title, external_id, category, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Title, p.ExternalID, p.Category, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetProducts returns the products that exist among ids, in the order the
// ids were given. Unknown ids are silently dropped.
func (s *PostgresStore) GetProducts(ctx context.Context, ids []uuid.UUID) ([]*models.Product, error) {
	if len(ids) == 0 {
		return []*models.Product{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*models.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	products := make([]*models.Product, 0, len(byID))
	seen := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok && !seen[id] {
			products = append(products, p)
			seen[id] = true
		}
	}
	return products, nil
}

func (s *PostgresStore) AdvanceProductStatus(ctx context.Context, id uuid.UUID, from, to models.ProductStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE products SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, fmt.Errorf("advance product status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// --- Reference Assets ---

const assetColumns = `id, product_id, variant, position, width, height, location_kind, location_value, created_at`

func scanAsset(row rowScanner) (*models.ReferenceAsset, error) {
	var a models.ReferenceAsset
	var kind, value string
	if err := row.Scan(&a.ID, &a.ProductID, &a.Variant, &a.Position, &a.Width, &a.Height,
		&kind, &value, &a.CreatedAt); err != nil {
		return nil, err
	}
	loc, err := models.ParseLocation(kind, value)
	if err != nil {
		return nil, err
	}
	a.Location = loc
	return &a, nil
}

func (s *PostgresStore) GetReferenceAsset(ctx context.Context, id uuid.UUID) (*models.ReferenceAsset, error) {
	a, err := scanAsset(s.pool.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM reference_assets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reference asset: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListReferenceAssets(ctx context.Context, productID uuid.UUID, variant string) ([]*models.ReferenceAsset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+assetColumns+` FROM reference_assets
		 WHERE product_id = $1 AND ($2 = '' OR variant = $2)
		 ORDER BY position, created_at, id`, productID, variant)
	if err != nil {
		return nil, fmt.Errorf("list reference assets: %w", err)
	}
	defer rows.Close()

	assets := []*models.ReferenceAsset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference asset: %w", err)
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// ReplaceReferenceAssets deletes every asset of the product and inserts the
// given set in one transaction. Artifacts that pointed at a removed asset keep
// the dangling id.
func (s *PostgresStore) ReplaceReferenceAssets(ctx context.Context, productID uuid.UUID, assets []*models.ReferenceAsset) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM reference_assets WHERE product_id = $1`, productID); err != nil {
			return fmt.Errorf("delete reference assets: %w", err)
		}
		for _, a := range assets {
			a.ProductID = productID
			if a.CreatedAt.IsZero() {
				a.CreatedAt = time.Now().UTC()
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO reference_assets (`+assetColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				a.ID, a.ProductID, a.Variant, a.Position, a.Width, a.Height,
				string(a.Location.Kind), a.Location.Value, a.CreatedAt); err != nil {
				if isDuplicateKeyError(err) {
					return ErrDuplicateKey
				}
				return fmt.Errorf("insert reference asset: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `UPDATE products SET updated_at = NOW() WHERE id = $1`, productID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return err
		}
		return fmt.Errorf("replace reference assets: %w", err)
	}
	return nil
}

// --- Rendering Intents ---

func (s *PostgresStore) CreateIntent(ctx context.Context, intent *models.RenderingIntent) error {
	if intent.MediaType == "" {
		intent.MediaType = models.MediaTypeImage
	}
	vars := intent.Variables
	if vars == nil {
		vars = []models.VariableDefinition{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rendering_intents (id, kind, name, prompt_template, media_type, variables, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.ID, intent.Kind, intent.Name, intent.PromptTemplate, intent.MediaType, vars,
		intent.CreatedAt, intent.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create intent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetIntent(ctx context.Context, id uuid.UUID) (*models.RenderingIntent, error) {
	var i models.RenderingIntent
	err := s.pool.QueryRow(ctx,
		`SELECT id, kind, name, prompt_template, media_type, variables, created_at, updated_at
		 FROM rendering_intents WHERE id = $1`, id,
	).Scan(&i.ID, &i.Kind, &i.Name, &i.PromptTemplate, &i.MediaType, &i.Variables, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get intent: %w", err)
	}
	return &i, nil
}

// --- Artifacts ---

const artifactColumns = `id, product_id, intent_id, reference_asset_id, parent_id, job_id, version, status,
	media_type, prompt, location_kind, location_value, width, height, size_bytes, failure_reason, actor,
	created_at, updated_at`

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var a models.Artifact
	var kind, value string
	if err := row.Scan(&a.ID, &a.ProductID, &a.IntentID, &a.ReferenceAssetID, &a.ParentID, &a.JobID,
		&a.Version, &a.Status, &a.MediaType, &a.Prompt, &kind, &value, &a.Width, &a.Height,
		&a.SizeBytes, &a.FailureReason, &a.Actor, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	loc, err := models.ParseLocation(kind, value)
	if err != nil {
		return nil, err
	}
	a.Location = loc
	return &a, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertArtifact(ctx context.Context, db execer, a *models.Artifact) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err := db.Exec(ctx,
		`INSERT INTO artifacts (`+artifactColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.ProductID, a.IntentID, a.ReferenceAssetID, a.ParentID, a.JobID, a.Version, a.Status,
		a.MediaType, a.Prompt, string(a.Location.Kind), a.Location.Value, a.Width, a.Height,
		a.SizeBytes, a.FailureReason, a.Actor, a.CreatedAt, a.UpdatedAt)
	return err
}

// CreateArtifact inserts a with the version it already carries.
func (s *PostgresStore) CreateArtifact(ctx context.Context, a *models.Artifact) error {
	if err := insertArtifact(ctx, s.pool, a); err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

// CreateArtifactNextVersion sets a.Version to one past the highest version of
// its (product, intent) pair and inserts it. Writers of the same pair are
// serialized on a transaction-scoped advisory lock.
func (s *PostgresStore) CreateArtifactNextVersion(ctx context.Context, a *models.Artifact) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			a.ProductID.String()+":"+a.IntentID.String()); err != nil {
			return fmt.Errorf("lock version sequence: %w", err)
		}
		var next int
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(version), 0) + 1 FROM artifacts WHERE product_id = $1 AND intent_id = $2`,
			a.ProductID, a.IntentID).Scan(&next); err != nil {
			return fmt.Errorf("next artifact version: %w", err)
		}
		a.Version = next
		return insertArtifact(ctx, tx, a)
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create artifact: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetArtifact(ctx context.Context, id uuid.UUID) (*models.Artifact, error) {
	a, err := scanArtifact(s.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FinalizeArtifact(ctx context.Context, id uuid.UUID, upd models.ArtifactUpdate) error {
	if upd.Status != models.ArtifactStatusCompleted && upd.Status != models.ArtifactStatusRejected {
		return fmt.Errorf("%w: GENERATING -> %s", ErrInvalidTransition, upd.Status)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE artifacts SET status = $2, location_kind = $3, location_value = $4,
		   width = $5, height = $6, size_bytes = $7, failure_reason = $8, updated_at = NOW()
		 WHERE id = $1 AND status = 'GENERATING'`,
		id, upd.Status, string(upd.Location.Kind), upd.Location.Value,
		upd.Width, upd.Height, upd.SizeBytes, upd.FailureReason)
	if err != nil {
		return fmt.Errorf("finalize artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetArtifact(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: artifact %s is not GENERATING", ErrInvalidTransition, id)
	}
	return nil
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, filter ArtifactFilter) ([]*models.Artifact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE product_id = $1
		   AND ($2::uuid IS NULL OR intent_id = $2)
		   AND ($3::uuid IS NULL OR job_id = $3)
		 ORDER BY intent_id, version`, filter.ProductID, filter.IntentID, filter.JobID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := []*models.Artifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

// --- Jobs ---

const jobColumns = `id, product_ids, intent_ids, variant_filter, status, total_images, completed_images,
	failed_images, error_log, actor, halt_requested, started_at, completed_at, created_at, updated_at`

func scanJob(row rowScanner) (*models.Job, error) {
	var j models.Job
	if err := row.Scan(&j.ID, &j.ProductIDs, &j.IntentIDs, &j.VariantFilter, &j.Status, &j.TotalImages,
		&j.CompletedImages, &j.FailedImages, &j.ErrorLog, &j.Actor, &j.HaltRequested,
		&j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		job.ID, job.ProductIDs, job.IntentIDs, job.VariantFilter, job.Status, job.TotalImages,
		job.CompletedImages, job.FailedImages, job.ErrorLog, job.Actor, job.HaltRequested,
		job.StartedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) RecordUnitOutcome(ctx context.Context, id uuid.UUID, succeeded bool, errorLine string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   completed_images = completed_images + CASE WHEN $2::boolean THEN 1 ELSE 0 END,
		   failed_images    = failed_images    + CASE WHEN $2::boolean THEN 0 ELSE 1 END,
		   error_log = CASE
		     WHEN $3::text = '' THEN error_log
		     WHEN error_log = '' THEN $3::text
		     ELSE error_log || E'\n' || $3::text
		   END,
		   updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'
		 RETURNING `+jobColumns, id, succeeded, errorLine))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.closedJobError(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("record unit outcome: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, id uuid.UUID, status models.JobStatus, errorLine string) (*models.Job, error) {
	if status != models.JobStatusCompleted && status != models.JobStatusFailed {
		return nil, fmt.Errorf("%w: PROCESSING -> %s", ErrInvalidTransition, status)
	}
	j, err := scanJob(s.pool.QueryRow(ctx,
		`UPDATE jobs SET
		   status = $2,
		   error_log = CASE
		     WHEN $3::text = '' THEN error_log
		     WHEN error_log = '' THEN $3::text
		     ELSE error_log || E'\n' || $3::text
		   END,
		   completed_at = NOW(),
		   updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'
		 RETURNING `+jobColumns, id, status, errorLine))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.closedJobError(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("finish job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) closedJobError(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is no longer PROCESSING", ErrInvalidTransition, id)
}

func (s *PostgresStore) RequestJobHalt(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET halt_requested = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("request job halt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) IsJobHaltRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var halted bool
	err := s.pool.QueryRow(ctx, `SELECT halt_requested FROM jobs WHERE id = $1`, id).Scan(&halted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("is job halt requested: %w", err)
	}
	return halted, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
