package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Harvey-AU/site-report/internal/cache"
	"github.com/Harvey-AU/site-report/internal/observability"
	"github.com/Harvey-AU/site-report/internal/report"
)

var (
	// ErrInvalidFilename is returned for download names that are not plain
	// PDF basenames.
	ErrInvalidFilename = errors.New("invalid document filename")
	// ErrDocumentNotFound is returned when the named document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
)

// StoredDocument describes a generated document awaiting download.
type StoredDocument struct {
	Name           string
	Path           string
	AttachmentName string
}

// Store keeps generated documents in a transient directory. Entries expire
// after the configured TTL and their files are removed.
type Store struct {
	dir   string
	index *cache.TTLCache[StoredDocument]
}

// NewStore creates the output directory if needed.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	index := cache.NewTTLCache(ttl, cache.WithEvictCallback(func(name string, doc StoredDocument) {
		if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("document", name).Msg("Failed to remove expired document")
			return
		}
		log.Debug().Str("document", name).Msg("Expired document removed")
	}))

	return &Store{dir: dir, index: index}, nil
}

// Dir returns the output directory.
func (s *Store) Dir() string {
	return s.dir
}

// Create opens a new uniquely named document file.
func (s *Store) Create(attachmentName string) (*os.File, StoredDocument, error) {
	name := "report-" + uuid.New().String() + ".pdf"
	doc := StoredDocument{
		Name:           name,
		Path:           filepath.Join(s.dir, name),
		AttachmentName: attachmentName,
	}

	f, err := os.OpenFile(doc.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return nil, StoredDocument{}, fmt.Errorf("failed to create document file: %w", err)
	}
	return f, doc, nil
}

// Register makes a completed document available for download.
func (s *Store) Register(doc StoredDocument) {
	s.index.Set(doc.Name, doc)
}

// Lookup resolves a download name to a document in the output directory.
// Only plain *.pdf basenames are accepted.
func (s *Store) Lookup(name string) (StoredDocument, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return StoredDocument{}, ErrInvalidFilename
	}

	if doc, ok := s.index.Get(name); ok {
		if _, err := os.Stat(doc.Path); err != nil {
			return StoredDocument{}, ErrDocumentNotFound
		}
		return doc, nil
	}

	// Documents written before a restart are not indexed but are still served.
	path := filepath.Join(s.dir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return StoredDocument{}, ErrDocumentNotFound
	}
	return StoredDocument{Name: name, Path: path, AttachmentName: name}, nil
}

// Sweep removes expired documents.
func (s *Store) Sweep() int {
	return s.index.Sweep()
}

// Run sweeps expired documents every interval until stop is closed.
func (s *Store) Run(interval time.Duration, stop <-chan struct{}) {
	s.index.Run(interval, stop)
}

// Exporter produces JSON and document exports of reports.
type Exporter struct {
	renderer Renderer
	store    *Store
	now      func() time.Time
}

// NewExporter creates an exporter. renderer may be nil, in which case
// document generation reports ErrRendererUnavailable.
func NewExporter(renderer Renderer, store *Store) *Exporter {
	return &Exporter{renderer: renderer, store: store, now: time.Now}
}

// Store returns the document store.
func (e *Exporter) Store() *Store {
	return e.store
}

// JSON returns the serialised report and its attachment filename.
func (e *Exporter) JSON(rep *report.Report) ([]byte, string, error) {
	data, err := MarshalReport(rep)
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialise report: %w", err)
	}
	return data, Filename(rep, "json", e.now()), nil
}

// GenerateDocument renders rep to a transient PDF and returns its stored entry.
func (e *Exporter) GenerateDocument(ctx context.Context, rep *report.Report) (StoredDocument, error) {
	if e.renderer == nil || e.store == nil {
		observability.RecordDocument(ctx, "unavailable", 0)
		return StoredDocument{}, ErrRendererUnavailable
	}

	start := time.Now()
	f, doc, err := e.store.Create(Filename(rep, "pdf", e.now()))
	if err != nil {
		observability.RecordDocument(ctx, "error", time.Since(start))
		return StoredDocument{}, err
	}

	renderErr := e.renderer.Render(BuildDocument(rep), f)
	closeErr := f.Close()
	if err := errors.Join(renderErr, closeErr); err != nil {
		_ = os.Remove(doc.Path)
		observability.RecordDocument(ctx, "error", time.Since(start))
		return StoredDocument{}, err
	}

	observability.RecordDocument(ctx, "ok", time.Since(start))

	e.store.Register(doc)

	log.Info().
		Str("host", rep.Target.Host).
		Str("document", doc.Name).
		Msg("Document generated")

	return doc, nil
}
