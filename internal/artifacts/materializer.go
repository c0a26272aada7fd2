package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kiranshivaraju/catalogstudio/internal/logger"
	"github.com/kiranshivaraju/catalogstudio/pkg/models"
)

// Lease holds the bytes of a materialized location. When the source was
// remote the bytes were also written to a scratch file which Release removes.
// Release is safe to call more than once.
type Lease struct {
	Path     string
	Data     []byte
	MIMEType string

	transient bool
	once      sync.Once
	err       error
}

func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		if !l.transient || l.Path == "" {
			return
		}
		if err := os.Remove(l.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.err = fmt.Errorf("artifacts: remove scratch file: %w", err)
		}
	})
	return l.err
}

// Materializer resolves a Location to local bytes.
type Materializer struct {
	objects    Store
	httpClient *http.Client
	scratchDir string
	maxBytes   int64
	log        *logger.Logger
}

type MaterializerOption func(*Materializer)

// WithObjectStore lets gs:// locations be read through the given store.
func WithObjectStore(s Store) MaterializerOption {
	return func(m *Materializer) { m.objects = s }
}

func WithHTTPClient(c *http.Client) MaterializerOption {
	return func(m *Materializer) { m.httpClient = c }
}

func WithMaxBytes(n int64) MaterializerOption {
	return func(m *Materializer) { m.maxBytes = n }
}

func NewMaterializer(scratchDir string, log *logger.Logger, opts ...MaterializerOption) (*Materializer, error) {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure scratch dir: %w", err)
	}
	m := &Materializer{
		httpClient: http.DefaultClient,
		scratchDir: scratchDir,
		maxBytes:   20 << 20,
		log:        log.With("component", "materializer"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Materializer) Materialize(ctx context.Context, loc models.Location) (*Lease, error) {
	if !loc.IsSet() {
		return nil, fmt.Errorf("artifacts: location is unset")
	}

	switch loc.Kind {
	case models.LocationLocal:
		data, err := m.readCapped(loc.Value, func() (io.ReadCloser, error) { return os.Open(loc.Value) })
		if err != nil {
			return nil, err
		}
		return &Lease{Path: loc.Value, Data: data, MIMEType: detectMIME(loc.Value, data)}, nil

	case models.LocationRemote:
		var open func() (io.ReadCloser, error)
		switch {
		case strings.HasPrefix(loc.Value, "gs://"):
			if m.objects == nil {
				return nil, fmt.Errorf("artifacts: no object store configured for %s", loc.Value)
			}
			open = func() (io.ReadCloser, error) { return m.objects.Open(ctx, loc) }
		case strings.HasPrefix(loc.Value, "http://"), strings.HasPrefix(loc.Value, "https://"):
			open = func() (io.ReadCloser, error) { return m.fetch(ctx, loc.Value) }
		default:
			return nil, fmt.Errorf("artifacts: unsupported remote location %q", loc.Value)
		}
		data, err := m.readCapped(loc.Value, open)
		if err != nil {
			return nil, err
		}
		return m.writeScratch(loc.Value, data)

	default:
		return nil, fmt.Errorf("artifacts: unknown location kind %q", loc.Kind)
	}
}

func (m *Materializer) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("artifacts: build request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("artifacts: fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("artifacts: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	if resp.ContentLength > m.maxBytes {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrReferenceTooLarge, url, resp.ContentLength)
	}
	return resp.Body, nil
}

func (m *Materializer) readCapped(source string, open func() (io.ReadCloser, error)) ([]byte, error) {
	rc, err := open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, m.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("artifacts: read %s: %w", source, err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrReferenceTooLarge, source, m.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("artifacts: %s is empty", source)
	}
	return data, nil
}

func (m *Materializer) writeScratch(source string, data []byte) (*Lease, error) {
	mimeType := detectMIME(source, data)
	f, err := os.CreateTemp(m.scratchDir, "reference-*."+ExtensionFor(mimeType))
	if err != nil {
		return nil, fmt.Errorf("artifacts: create scratch file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("artifacts: write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("artifacts: close scratch file: %w", err)
	}
	m.log.Debug("reference materialized", "source", source, "path", filepath.Base(f.Name()), "bytes", len(data))
	return &Lease{Path: f.Name(), Data: data, MIMEType: mimeType, transient: true}, nil
}

func detectMIME(source string, data []byte) string {
	if ct := ContentTypeForKey(source); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}
