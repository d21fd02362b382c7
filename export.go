package cardmaker

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// CardRenderer renders one hydrated card document to an export-ready PNG
// (exact output pixel size, 300 DPI density tag).
type CardRenderer interface {
	RenderPNG(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error)
}

// ExportRequest is a single-deck export submission.
type ExportRequest struct {
	TemplateID string
	Cards      []CardData
	Mapping    FieldMapping
	Options    ExportOptions
	GameID     string
}

// Exporter orchestrates export jobs: it validates submissions, renders
// cards sequentially through the pool, tracks progress, and composes the
// final artifacts. It is the single place that logs errors; everything
// below it returns errors as values.
//
// Rendering inside a job is deliberately sequential even though the pool
// could serve it in parallel: it bounds peak memory independent of deck
// size and leaves pool capacity for interactive preview traffic.
type Exporter struct {
	renderer  CardRenderer
	templates TemplateStore
	artwork   ArtworkStore
	rows      RowSource
	projects  ProjectStore
	jobs      *jobStore
	outputDir string
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// Job returns a snapshot of a job record for polling.
func (e *Exporter) Job(id string) (ExportJob, bool) {
	return e.jobs.get(id)
}

// Submit validates a single-deck export request, creates a job record,
// and returns its id immediately. The export itself runs asynchronously;
// submitted jobs cannot be cancelled, callers observe outcome via Job.
func (e *Exporter) Submit(ctx context.Context, req ExportRequest) (string, error) {
	if e.templates == nil {
		return "", ErrNoTemplateSource
	}
	if req.TemplateID == "" {
		return "", ErrMissingTemplate
	}
	if err := req.Options.Validate(); err != nil {
		return "", err
	}
	selected := selectCards(req.Cards, req.Options.SelectedCards)
	if len(selected) == 0 {
		return "", ErrNoCards
	}
	dims, err := req.Options.CardSize.Resolve()
	if err != nil {
		return "", err
	}

	job := ExportJob{
		ID:     e.newID(),
		Status: StatusQueued,
		Total:  len(selected),
		Format: req.Options.Format,
	}
	e.jobs.create(job)

	go e.runDeckExport(job.ID, req.TemplateID, selected, req.Mapping, req.Options, req.GameID, dims)
	return job.ID, nil
}

// SubmitProject validates a whole-project export and returns a job id.
// Every deck in the game is exported into its own subfolder; progress
// accumulates across the whole project.
func (e *Exporter) SubmitProject(ctx context.Context, gameID string, opts ExportOptions) (string, error) {
	if e.templates == nil {
		return "", ErrNoTemplateSource
	}
	if e.projects == nil || e.rows == nil {
		return "", ErrNoProjectSource
	}
	if err := opts.Validate(); err != nil {
		return "", err
	}
	game, err := e.projects.Game(ctx, gameID)
	if err != nil {
		return "", err
	}
	decks, err := e.projects.Decks(ctx, gameID)
	if err != nil {
		return "", err
	}
	if len(decks) == 0 {
		return "", ErrEmptyProject
	}

	job := ExportJob{
		ID:     e.newID(),
		Status: StatusQueued,
		Format: opts.Format,
	}
	e.jobs.create(job)

	go e.runProjectExport(job.ID, game, decks, opts)
	return job.ID, nil
}

func (e *Exporter) runDeckExport(jobID, templateID string, cards []CardData, mapping FieldMapping, opts ExportOptions, gameID string, dims ResolvedCardDimensions) {
	if err := e.exportDeckJob(context.Background(), jobID, templateID, cards, mapping, opts, gameID, dims); err != nil {
		e.failJob(jobID, err)
	}
}

func (e *Exporter) runProjectExport(jobID string, game Game, decks []Deck, opts ExportOptions) {
	if err := e.exportProjectJob(context.Background(), jobID, game, decks, opts); err != nil {
		e.failJob(jobID, err)
	}
}

// failJob records an error outcome. Completed stays at whatever count was
// reached; no partial artifact paths are published.
func (e *Exporter) failJob(jobID string, err error) {
	e.logger.Error("export job failed", "job", jobID, "error", err)
	e.jobs.update(jobID, func(j *ExportJob) {
		j.Status = StatusError
		j.Error = err.Error()
	})
}

func (e *Exporter) exportDeckJob(ctx context.Context, jobID, templateID string, cards []CardData, mapping FieldMapping, opts ExportOptions, gameID string, dims ResolvedCardDimensions) error {
	e.jobs.update(jobID, func(j *ExportJob) { j.Status = StatusProcessing })

	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	pngs, err := e.renderDeck(ctx, jobID, templateID, cards, mapping, gameID, dims, opts.Format, 0, len(cards))
	if err != nil {
		return err
	}

	var back []byte
	if opts.IncludeCardBack && opts.CardBackImage != "" {
		path, err := e.artwork.CardBackFile(gameID, opts.CardBackImage)
		if err != nil {
			return err
		}
		if back, err = renderCardBack(path, dims); err != nil {
			return err
		}
	}

	ts := e.now().Unix()
	switch opts.Format {
	case FormatPNG:
		dir := filepath.Join(e.outputDir, fmt.Sprintf("cards-%d", ts))
		backPath, err := writePNGSet(dir, pngs, back)
		if err != nil {
			return err
		}
		e.jobs.update(jobID, func(j *ExportJob) {
			j.OutputPath = dir
			j.CardBackPath = backPath
		})

	case FormatPDF:
		all := pngs
		if back != nil {
			all = append(all, back)
		}
		pdfBytes, err := ComposePDF(all, PDFOptions{
			PageSize:         opts.PDFPageSize,
			CropMarks:        opts.PDFCropMarks,
			CardWidthInches:  dims.WidthInches,
			CardHeightInches: dims.HeightInches,
		})
		if err != nil {
			return err
		}
		path := filepath.Join(e.outputDir, fmt.Sprintf("cards-%d.pdf", ts))
		if err := os.WriteFile(path, pdfBytes, 0o644); err != nil {
			return fmt.Errorf("writing PDF: %w", err)
		}
		e.jobs.update(jobID, func(j *ExportJob) { j.OutputPath = path })

	case FormatSprite:
		sheet, err := ComposeSpriteSheet(pngs, opts.SpriteColumns, dims)
		if err != nil {
			return err
		}
		path := filepath.Join(e.outputDir, fmt.Sprintf("sprite-sheet-%d.png", ts))
		if err := os.WriteFile(path, sheet, 0o644); err != nil {
			return fmt.Errorf("writing sprite sheet: %w", err)
		}
		backPath := ""
		if back != nil {
			backPath = filepath.Join(e.outputDir, fmt.Sprintf("sprite-back-%d.png", ts))
			if err := os.WriteFile(backPath, back, 0o644); err != nil {
				return fmt.Errorf("writing sprite card back: %w", err)
			}
		}
		e.jobs.update(jobID, func(j *ExportJob) {
			j.OutputPath = path
			j.CardBackPath = backPath
		})

	default:
		// Unreachable through Submit, which validates the format up front;
		// kept so a future format never completes without an artifact.
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}

	e.jobs.update(jobID, func(j *ExportJob) {
		j.Progress = 100
		j.Status = StatusComplete
	})
	return nil
}

func (e *Exporter) exportProjectJob(ctx context.Context, jobID string, game Game, decks []Deck, opts ExportOptions) error {
	e.jobs.update(jobID, func(j *ExportJob) { j.Status = StatusProcessing })

	ts := e.now().Unix()
	gameDir := filepath.Join(e.outputDir, fmt.Sprintf("%s-%d", sanitizeName(game.Title), ts))
	if err := os.MkdirAll(gameDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	// Fetch every deck's rows before the first render so the job's total
	// card count is known up front.
	type deckRows struct {
		deck  Deck
		cards []CardData
	}
	all := make([]deckRows, 0, len(decks))
	grandTotal := 0
	for _, deck := range decks {
		data, err := e.rows.Rows(ctx, game.SheetURL, deck.SheetTabGID)
		if err != nil {
			return fmt.Errorf("fetching rows for deck %q: %w", deck.Name, err)
		}
		all = append(all, deckRows{deck: deck, cards: data.Rows})
		grandTotal += len(data.Rows)
		e.jobs.update(jobID, func(j *ExportJob) { j.Total = grandTotal })
	}
	if grandTotal == 0 {
		return ErrNoCards
	}

	completed := 0
	for _, d := range all {
		dims, err := deckDims(d.deck, opts)
		if err != nil {
			return fmt.Errorf("deck %q: %w", d.deck.Name, err)
		}
		deckDir := filepath.Join(gameDir, sanitizeName(d.deck.Name))
		if err := os.MkdirAll(deckDir, 0o755); err != nil {
			return fmt.Errorf("creating deck directory: %w", err)
		}

		pngs, err := e.renderDeck(ctx, jobID, d.deck.TemplateID, d.cards, d.deck.Mapping, game.ID, dims, opts.Format, completed, grandTotal)
		if err != nil {
			return fmt.Errorf("deck %q: %w", d.deck.Name, err)
		}
		completed += len(d.cards)

		var back []byte
		if d.deck.CardBackImage != "" {
			path, err := e.artwork.CardBackFile(game.ID, d.deck.CardBackImage)
			if err != nil {
				return fmt.Errorf("deck %q: %w", d.deck.Name, err)
			}
			if back, err = renderCardBack(path, dims); err != nil {
				return fmt.Errorf("deck %q: %w", d.deck.Name, err)
			}
		}

		outPath, err := composeDeckArtifacts(deckDir, sanitizeName(d.deck.Name), pngs, back, opts, dims)
		if err != nil {
			return fmt.Errorf("deck %q: %w", d.deck.Name, err)
		}
		e.jobs.update(jobID, func(j *ExportJob) {
			j.OutputPaths = append(j.OutputPaths, outPath)
		})
	}

	e.jobs.update(jobID, func(j *ExportJob) {
		j.OutputPath = gameDir
		j.Progress = 100
		j.Status = StatusComplete
	})
	return nil
}

// renderDeck renders cards strictly in sequence, updating job progress
// after each card. The render loop only consumes part of the progress
// range; the remainder is reserved for composition so progress never sits
// at 100% while the artifact is still being written. offset and
// grandTotal account for multi-deck jobs.
func (e *Exporter) renderDeck(ctx context.Context, jobID, templateID string, cards []CardData, mapping FieldMapping, gameID string, dims ResolvedCardDimensions, format ExportFormat, offset, grandTotal int) ([][]byte, error) {
	tmplHTML, tmplCSS, err := e.templates.TemplateAssets(templateID)
	if err != nil {
		return nil, err
	}
	baseURL := e.artwork.BaseURL(gameID)
	share := renderShare(format)

	pngs := make([][]byte, 0, len(cards))
	for i, card := range cards {
		doc := BuildCardDocument(tmplHTML, tmplCSS, card, mapping, baseURL, dims)
		png, err := e.renderer.RenderPNG(ctx, doc, dims)
		if err != nil {
			return nil, fmt.Errorf("rendering card %d: %w", i+1, err)
		}
		pngs = append(pngs, png)

		done := offset + i + 1
		e.jobs.update(jobID, func(j *ExportJob) {
			j.Completed = done
			j.Progress = int(math.Round(float64(done) / float64(grandTotal) * share))
		})
	}
	return pngs, nil
}

// renderShare is how much of the progress range the render loop may
// consume for a given format. PNG sets have a cheap composition step and
// get more; PDF and sprite composition is slower.
func renderShare(format ExportFormat) float64 {
	if format == FormatPNG {
		return 90
	}
	return 80
}

// composeDeckArtifacts writes one deck's artifacts into dir and returns
// the path recorded in the job (the directory for PNG and sprite output,
// the file for PDF).
func composeDeckArtifacts(dir, name string, pngs [][]byte, back []byte, opts ExportOptions, dims ResolvedCardDimensions) (string, error) {
	switch opts.Format {
	case FormatPNG:
		if _, err := writePNGSet(dir, pngs, back); err != nil {
			return "", err
		}
		return dir, nil

	case FormatPDF:
		all := pngs
		if back != nil {
			all = append(all, back)
		}
		pdfBytes, err := ComposePDF(all, PDFOptions{
			PageSize:         opts.PDFPageSize,
			CropMarks:        opts.PDFCropMarks,
			CardWidthInches:  dims.WidthInches,
			CardHeightInches: dims.HeightInches,
		})
		if err != nil {
			return "", err
		}
		path := filepath.Join(dir, name+".pdf")
		if err := os.WriteFile(path, pdfBytes, 0o644); err != nil {
			return "", fmt.Errorf("writing PDF: %w", err)
		}
		return path, nil

	case FormatSprite:
		sheet, err := ComposeSpriteSheet(pngs, opts.SpriteColumns, dims)
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, name+"-sprite.png"), sheet, 0o644); err != nil {
			return "", fmt.Errorf("writing sprite sheet: %w", err)
		}
		if back != nil {
			if err := os.WriteFile(filepath.Join(dir, name+"-back.png"), back, 0o644); err != nil {
				return "", fmt.Errorf("writing sprite card back: %w", err)
			}
		}
		return dir, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
}

// writePNGSet writes numbered card PNGs (and an optional card back) into
// dir, returning the card back path when one was written.
func writePNGSet(dir string, pngs [][]byte, back []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	for i, png := range pngs {
		path := filepath.Join(dir, fmt.Sprintf("card-%d.png", i+1))
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return "", fmt.Errorf("writing card %d: %w", i+1, err)
		}
	}
	if back == nil {
		return "", nil
	}
	backPath := filepath.Join(dir, "card-back.png")
	if err := os.WriteFile(backPath, back, 0o644); err != nil {
		return "", fmt.Errorf("writing card back: %w", err)
	}
	return backPath, nil
}

// deckDims resolves a deck's card size, falling back to the export
// options when the deck does not pin one.
func deckDims(deck Deck, opts ExportOptions) (ResolvedCardDimensions, error) {
	if deck.CardSize != (CardSizeSpec{}) {
		return deck.CardSize.Resolve()
	}
	return opts.CardSize.Resolve()
}

// selectCards applies an optional index subset; empty means all cards.
// Out-of-range indices are ignored.
func selectCards(cards []CardData, indices []int) []CardData {
	if len(indices) == 0 {
		return cards
	}
	selected := make([]CardData, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(cards) {
			selected = append(selected, cards[idx])
		}
	}
	return selected
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9-_ ]`)

// sanitizeName strips filesystem-hostile characters from a user-supplied
// game or deck name.
func sanitizeName(s string) string {
	s = strings.TrimSpace(unsafeNameChars.ReplaceAllString(s, ""))
	if s == "" {
		return "untitled"
	}
	return s
}
