package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// GCSStore keeps artifacts in a Google Cloud Storage bucket and addresses
// them as gs://bucket/key.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// ClientOptionsFromEnv reads service account credentials from
// GOOGLE_APPLICATION_CREDENTIALS_JSON (inline) or GOOGLE_APPLICATION_CREDENTIALS
// (file path). With neither set the client falls back to ambient credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	opts := []option.ClientOption{}
	if creds == "" {
		return opts
	}
	if strings.HasPrefix(creds, "{") {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else {
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return opts
}

func NewGCSStore(ctx context.Context, bucket string, opts ...option.ClientOption) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("artifacts: bucket name is required")
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("artifacts: create storage client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) Save(ctx context.Context, key string, data []byte, contentType string) (models.Location, error) {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return models.Location{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(cleanKey).NewWriter(ctx)
	if contentType == "" {
		contentType = ContentTypeForKey(cleanKey)
	}
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return models.Location{}, fmt.Errorf("artifacts: write gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		return models.Location{}, fmt.Errorf("artifacts: close gcs writer: %w", err)
	}
	return models.RemoteLocation(gsURL(s.bucket, cleanKey)), nil
}

func (s *GCSStore) Delete(ctx context.Context, loc models.Location) error {
	bucket, key, err := s.owned(loc)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifacts: delete gcs object %q: %w", key, err)
	}
	return nil
}

// readCloserWithCancel ties the download context to the reader's lifetime.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// Open reads any gs:// object the client can access, not only ones in the
// store's own bucket, so catalog photos in other buckets resolve too.
func (s *GCSStore) Open(ctx context.Context, loc models.Location) (io.ReadCloser, error) {
	if loc.Kind != models.LocationRemote {
		return nil, ErrForeignLocation
	}
	bucket, key, err := parseGSURL(loc.Value)
	if err != nil {
		return nil, err
	}
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Minute)
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx2)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("artifacts: open gcs reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (s *GCSStore) owned(loc models.Location) (string, string, error) {
	if loc.Kind != models.LocationRemote {
		return "", "", ErrForeignLocation
	}
	bucket, key, err := parseGSURL(loc.Value)
	if err != nil {
		return "", "", err
	}
	if bucket != s.bucket {
		return "", "", ErrForeignLocation
	}
	return bucket, key, nil
}

func gsURL(bucket, key string) string {
	return "gs://" + bucket + "/" + key
}

func parseGSURL(raw string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(raw, "gs://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a gs:// url", ErrForeignLocation, raw)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: malformed gs url %q", ErrInvalidKey, raw)
	}
	return bucket, key, nil
}
