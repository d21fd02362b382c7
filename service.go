package cardmaker

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// TemplateStore provides card template definitions and their render assets.
type TemplateStore interface {
	Template(id string) (CardTemplate, error)
	TemplateAssets(id string) (html, css string, err error)
	List() ([]CardTemplate, error)
}

// RowSource fetches card rows from a published spreadsheet tab.
type RowSource interface {
	Rows(ctx context.Context, sheetURL, tabGID string) (SheetData, error)
}

// ArtworkStore resolves a game's artwork locations: the base URL the
// browser fetches slot images and icons from, and card back files on disk.
type ArtworkStore interface {
	BaseURL(gameID string) string
	CardBackFile(gameID, filename string) (string, error)
}

// ProjectStore provides games and their decks for whole-project exports.
type ProjectStore interface {
	Game(ctx context.Context, gameID string) (Game, error)
	Decks(ctx context.Context, gameID string) ([]Deck, error)
}

// PreviewRequest renders a single card to an inline image.
type PreviewRequest struct {
	TemplateID string
	Card       CardData
	Mapping    FieldMapping
	GameID     string
	CardSize   CardSizeSpec
}

// serviceConfig holds internal configuration for Service.
type serviceConfig struct {
	timeout   time.Duration
	poolSize  int
	outputDir string
}

const defaultOutputDir = "output"

// Option configures a Service.
type Option func(*Service)

// WithTimeout sets the per-render timeout. Panics if d is not positive.
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("cardmaker: WithTimeout duration must be positive")
	}
	return func(s *Service) {
		s.cfg.timeout = d
	}
}

// WithPoolSize bounds the number of concurrent browser pages. Panics if n
// is not positive.
func WithPoolSize(n int) Option {
	if n < 1 {
		panic("cardmaker: WithPoolSize must be at least 1")
	}
	return func(s *Service) {
		s.cfg.poolSize = n
	}
}

// WithOutputDir sets where export artifacts are written.
func WithOutputDir(dir string) Option {
	return func(s *Service) {
		s.cfg.outputDir = dir
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTemplateStore sets the template source. Required for previews and
// exports.
func WithTemplateStore(store TemplateStore) Option {
	return func(s *Service) {
		s.templates = store
	}
}

// WithArtworkStore sets the artwork source.
func WithArtworkStore(store ArtworkStore) Option {
	return func(s *Service) {
		s.artwork = store
	}
}

// WithRowSource sets the spreadsheet row source used by project exports.
func WithRowSource(source RowSource) Option {
	return func(s *Service) {
		s.rows = source
	}
}

// WithProjectStore sets the game/deck source used by project exports.
func WithProjectStore(store ProjectStore) Option {
	return func(s *Service) {
		s.projects = store
	}
}

// WithSurfaceFactory injects a browser factory (e.g., by tests).
func WithSurfaceFactory(factory SurfaceFactory) Option {
	return func(s *Service) {
		s.factory = factory
	}
}

// Service is the top-level entry point: it owns the render surface pool
// and the export orchestrator, and serves previews directly.
type Service struct {
	cfg       serviceConfig
	logger    *log.Logger
	templates TemplateStore
	artwork   ArtworkStore
	rows      RowSource
	projects  ProjectStore
	factory   SurfaceFactory
	pool      *SurfacePool
	exporter  *Exporter
}

// New creates a Service with default configuration. Use options to
// customize behavior (e.g., WithPoolSize, WithTemplateStore).
func New(opts ...Option) *Service {
	s := &Service{
		cfg: serviceConfig{
			timeout:   defaultRenderTimeout,
			poolSize:  PagePoolSize,
			outputDir: defaultOutputDir,
		},
		logger:  log.Default(),
		artwork: nopArtworkStore{},
	}

	for _, opt := range opts {
		opt(s)
	}

	// Create the browser factory if not injected (e.g., by tests).
	if s.factory == nil {
		s.factory = newRodFactory(s.cfg.timeout)
	}
	s.pool = NewSurfacePool(s.factory, s.cfg.poolSize)

	s.exporter = &Exporter{
		renderer:  &poolRenderer{pool: s.pool},
		templates: s.templates,
		artwork:   s.artwork,
		rows:      s.rows,
		projects:  s.projects,
		jobs:      newJobStore(),
		outputDir: s.cfg.outputDir,
		logger:    s.logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	return s
}

// Exporter returns the export orchestrator.
func (s *Service) Exporter() *Exporter {
	return s.exporter
}

// RenderPreview renders one card and returns it as a base64 PNG data URL.
// Previews skip export normalization (resample and density tagging) for
// speed.
func (s *Service) RenderPreview(ctx context.Context, req PreviewRequest) (string, error) {
	if s.templates == nil {
		return "", ErrNoTemplateSource
	}
	if req.TemplateID == "" {
		return "", ErrMissingTemplate
	}
	dims, err := req.CardSize.Resolve()
	if err != nil {
		return "", err
	}
	tmplHTML, tmplCSS, err := s.templates.TemplateAssets(req.TemplateID)
	if err != nil {
		return "", err
	}

	doc := BuildCardDocument(tmplHTML, tmplCSS, req.Card, req.Mapping, s.artwork.BaseURL(req.GameID), dims)
	raw, err := s.pool.Render(ctx, doc, dims)
	if err != nil {
		return "", err
	}
	return previewDataURL(raw), nil
}

// RenderPreviewBatch renders several cards of one template concurrently
// through the pool. Results preserve request order; the first render error
// fails the batch.
func (s *Service) RenderPreviewBatch(ctx context.Context, reqs []PreviewRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, ErrNoCards
	}

	results := make([]string, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			url, err := s.RenderPreview(ctx, req)
			if err != nil {
				return err
			}
			results[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// WarmUp eagerly launches the browser and fills the surface pool.
func (s *Service) WarmUp(ctx context.Context) error {
	return s.pool.WarmUp(ctx)
}

// Close releases the surface pool and the browser process.
func (s *Service) Close() error {
	return s.pool.Close()
}

// poolRenderer adapts the surface pool into the exporter's renderer:
// pool-managed capture followed by export normalization.
type poolRenderer struct {
	pool *SurfacePool
}

var _ CardRenderer = (*poolRenderer)(nil)

func (r *poolRenderer) RenderPNG(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error) {
	raw, err := r.pool.Render(ctx, html, dims)
	if err != nil {
		return nil, err
	}
	return exportPNG(raw, dims)
}

// nopArtworkStore is the default when no artwork store is configured:
// no base URL, no card backs.
type nopArtworkStore struct{}

func (nopArtworkStore) BaseURL(string) string { return "" }

func (nopArtworkStore) CardBackFile(string, string) (string, error) {
	return "", ErrCardBackNotFound
}
