package cardmaker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

// fakeRenderer is a CardRenderer serving canned PNG bytes, optionally
// failing on one call.
type fakeRenderer struct {
	png    []byte
	failAt int // 1-based call number that fails; 0 = never
	calls  atomic.Int32
}

func (r *fakeRenderer) RenderPNG(ctx context.Context, html string, dims ResolvedCardDimensions) ([]byte, error) {
	n := int(r.calls.Add(1))
	if r.failAt > 0 && n == r.failAt {
		return nil, fmt.Errorf("%w: tab crashed", ErrCapture)
	}
	return r.png, nil
}

type fakeTemplates struct{}

func (fakeTemplates) Template(id string) (CardTemplate, error) {
	return CardTemplate{ID: id, Name: "Test"}, nil
}

func (fakeTemplates) TemplateAssets(id string) (string, string, error) {
	return `<div class="card">{{name}}</div>`, ".card {}", nil
}

func (fakeTemplates) List() ([]CardTemplate, error) { return nil, nil }

// fakeArtwork serves card backs from a real directory so image resampling
// has a file to open.
type fakeArtwork struct {
	dir string
}

func (a fakeArtwork) BaseURL(gameID string) string { return "http://localhost/games/" + gameID }

func (a fakeArtwork) CardBackFile(gameID, filename string) (string, error) {
	path := filepath.Join(a.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrCardBackNotFound
	}
	return path, nil
}

type fakeProjects struct {
	game  Game
	decks []Deck
}

func (p fakeProjects) Game(ctx context.Context, gameID string) (Game, error) {
	if gameID != p.game.ID {
		return Game{}, ErrGameNotFound
	}
	return p.game, nil
}

func (p fakeProjects) Decks(ctx context.Context, gameID string) ([]Deck, error) {
	return p.decks, nil
}

type fakeRows struct {
	rows map[string][]CardData // keyed by tab gid
	err  error
}

func (r fakeRows) Rows(ctx context.Context, sheetURL, tabGID string) (SheetData, error) {
	if r.err != nil {
		return SheetData{}, r.err
	}
	return SheetData{Headers: []string{"Name"}, Rows: r.rows[tabGID]}, nil
}

func newTestExporter(t *testing.T, renderer CardRenderer, rows RowSource, projects ProjectStore) (*Exporter, string) {
	t.Helper()
	outDir := t.TempDir()
	artDir := t.TempDir()

	back := encodeTestPNG(t, 30, 42)
	if err := os.WriteFile(filepath.Join(artDir, "back.png"), back, 0o644); err != nil {
		t.Fatalf("writing card back fixture: %v", err)
	}

	logger := log.New(os.Stderr)
	logger.SetLevel(log.FatalLevel)

	var id atomic.Int32
	return &Exporter{
		renderer:  renderer,
		templates: fakeTemplates{},
		artwork:   fakeArtwork{dir: artDir},
		rows:      rows,
		projects:  projects,
		jobs:      newJobStore(),
		outputDir: outDir,
		logger:    logger,
		now:       func() time.Time { return time.Unix(1700000000, 0) },
		newID:     func() string { return fmt.Sprintf("job-%d", id.Add(1)) },
	}, outDir
}

func waitForJob(t *testing.T, e *Exporter, id string) ExportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := e.Job(id)
		if ok && (job.Status == StatusComplete || job.Status == StatusError) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal status")
	return ExportJob{}
}

func testCards(n int) []CardData {
	cards := make([]CardData, n)
	for i := range cards {
		cards[i] = CardData{"Name": fmt.Sprintf("Card %d", i+1)}
	}
	return cards
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: []byte("png")}
	exp, _ := newTestExporter(t, renderer, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     ExportRequest
		wantErr error
	}{
		{
			name:    "missing template",
			req:     ExportRequest{Cards: testCards(1), Options: ExportOptions{Format: FormatPNG}},
			wantErr: ErrMissingTemplate,
		},
		{
			name:    "no cards",
			req:     ExportRequest{TemplateID: "t", Options: ExportOptions{Format: FormatPNG}},
			wantErr: ErrNoCards,
		},
		{
			name:    "unknown format",
			req:     ExportRequest{TemplateID: "t", Cards: testCards(1), Options: ExportOptions{Format: "gif"}},
			wantErr: ErrUnknownFormat,
		},
		{
			name: "selection entirely out of range",
			req: ExportRequest{
				TemplateID: "t",
				Cards:      testCards(2),
				Options:    ExportOptions{Format: FormatPNG, SelectedCards: []int{5, 9}},
			},
			wantErr: ErrNoCards,
		},
		{
			name: "oversize custom card",
			req: ExportRequest{
				TemplateID: "t",
				Cards:      testCards(1),
				Options: ExportOptions{
					Format:   FormatPNG,
					CardSize: CardSizeSpec{Preset: PresetCustom, WidthInches: 8, HeightInches: 8},
				},
			},
			wantErr: ErrCardTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := exp.Submit(ctx, tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if renderer.calls.Load() != 0 {
		t.Errorf("renderer called %d times during failed validation, want 0", renderer.calls.Load())
	}
}

func TestSubmitRequiresTemplateStore(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: []byte("png")}
	exp, _ := newTestExporter(t, renderer, fakeRows{}, fakeProjects{game: Game{ID: "g1"}})
	exp.templates = nil
	ctx := context.Background()

	// Both entry points must refuse before a job exists, never from the
	// export goroutine where the nil interface would panic the process.
	if _, err := exp.Submit(ctx, ExportRequest{
		TemplateID: "t",
		Cards:      testCards(1),
		Options:    ExportOptions{Format: FormatPNG},
	}); !errors.Is(err, ErrNoTemplateSource) {
		t.Errorf("Submit() error = %v, want ErrNoTemplateSource", err)
	}

	if _, err := exp.SubmitProject(ctx, "g1", ExportOptions{Format: FormatPNG}); !errors.Is(err, ErrNoTemplateSource) {
		t.Errorf("SubmitProject() error = %v, want ErrNoTemplateSource", err)
	}

	if renderer.calls.Load() != 0 {
		t.Errorf("renderer called %d times, want 0", renderer.calls.Load())
	}
}

func TestExportDeckJobRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 30, 42)}
	exp, _ := newTestExporter(t, renderer, nil, nil)

	job := ExportJob{ID: "job-x", Status: StatusQueued, Total: 1}
	exp.jobs.create(job)

	dims := ResolvedCardDimensions{WidthInches: 2.5, HeightInches: 3.5, WidthPx: 30, HeightPx: 42}
	err := exp.exportDeckJob(context.Background(), job.ID, "t", testCards(1),
		nil, ExportOptions{Format: "webp"}, "", dims)
	if !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("exportDeckJob() error = %v, want ErrUnknownFormat", err)
	}

	// No artifact means no completion.
	got, _ := exp.Job(job.ID)
	if got.Status == StatusComplete {
		t.Error("job marked complete without an artifact")
	}
	if got.OutputPath != "" {
		t.Errorf("OutputPath = %q, want empty", got.OutputPath)
	}
}

func TestSubmitPNGExport(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 30, 42)}
	exp, outDir := newTestExporter(t, renderer, nil, nil)

	jobID, err := exp.Submit(context.Background(), ExportRequest{
		TemplateID: "basic",
		Cards:      testCards(3),
		Options: ExportOptions{
			Format:          FormatPNG,
			IncludeCardBack: true,
			CardBackImage:   "back.png",
		},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusComplete {
		t.Fatalf("status = %q (%s), want complete", job.Status, job.Error)
	}
	if job.Progress != 100 || job.Completed != 3 || job.Total != 3 {
		t.Errorf("job = progress %d, completed %d/%d; want 100, 3/3",
			job.Progress, job.Completed, job.Total)
	}

	wantDir := filepath.Join(outDir, "cards-1700000000")
	if job.OutputPath != wantDir {
		t.Errorf("OutputPath = %q, want %q", job.OutputPath, wantDir)
	}
	for i := 1; i <= 3; i++ {
		if _, err := os.Stat(filepath.Join(wantDir, fmt.Sprintf("card-%d.png", i))); err != nil {
			t.Errorf("missing card-%d.png: %v", i, err)
		}
	}
	if _, err := os.Stat(filepath.Join(wantDir, "card-back.png")); err != nil {
		t.Errorf("missing card-back.png: %v", err)
	}
	if job.CardBackPath != filepath.Join(wantDir, "card-back.png") {
		t.Errorf("CardBackPath = %q", job.CardBackPath)
	}
}

func TestSubmitSelectedCards(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 30, 42)}
	exp, _ := newTestExporter(t, renderer, nil, nil)

	jobID, err := exp.Submit(context.Background(), ExportRequest{
		TemplateID: "basic",
		Cards:      testCards(5),
		Options: ExportOptions{
			Format:        FormatPNG,
			SelectedCards: []int{0, 2, 4},
		},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusComplete {
		t.Fatalf("status = %q (%s), want complete", job.Status, job.Error)
	}
	if job.Total != 3 || renderer.calls.Load() != 3 {
		t.Errorf("total = %d, renders = %d; want 3 and 3", job.Total, renderer.calls.Load())
	}
}

func TestSubmitPDFExport(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 75, 105)}
	exp, outDir := newTestExporter(t, renderer, nil, nil)

	jobID, err := exp.Submit(context.Background(), ExportRequest{
		TemplateID: "basic",
		Cards:      testCards(2),
		Options:    ExportOptions{Format: FormatPDF, PDFCropMarks: true},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusComplete {
		t.Fatalf("status = %q (%s), want complete", job.Status, job.Error)
	}

	wantPath := filepath.Join(outDir, "cards-1700000000.pdf")
	if job.OutputPath != wantPath {
		t.Errorf("OutputPath = %q, want %q", job.OutputPath, wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading PDF: %v", err)
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		t.Error("output is not a PDF")
	}
}

func TestSubmitSpriteExport(t *testing.T) {
	t.Parallel()

	dims := ResolveCardDimensions(2.5, 3.5, false)
	renderer := &fakeRenderer{png: encodeTestPNG(t, dims.WidthPx, dims.HeightPx)}
	exp, outDir := newTestExporter(t, renderer, nil, nil)

	jobID, err := exp.Submit(context.Background(), ExportRequest{
		TemplateID: "basic",
		Cards:      testCards(4),
		Options:    ExportOptions{Format: FormatSprite, SpriteColumns: 2},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusComplete {
		t.Fatalf("status = %q (%s), want complete", job.Status, job.Error)
	}

	data, err := os.ReadFile(filepath.Join(outDir, "sprite-sheet-1700000000.png"))
	if err != nil {
		t.Fatalf("reading sprite sheet: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding sprite sheet: %v", err)
	}
	if img.Bounds().Dx() != 2*dims.WidthPx || img.Bounds().Dy() != 2*dims.HeightPx {
		t.Errorf("sheet = %v, want 2x2 grid of %dx%d cards", img.Bounds(), dims.WidthPx, dims.HeightPx)
	}
}

func TestSubmitRenderFailure(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 30, 42), failAt: 2}
	exp, _ := newTestExporter(t, renderer, nil, nil)

	jobID, err := exp.Submit(context.Background(), ExportRequest{
		TemplateID: "basic",
		Cards:      testCards(3),
		Options:    ExportOptions{Format: FormatPNG},
	})
	if err != nil {
		t.Fatalf("Submit() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusError {
		t.Fatalf("status = %q, want error", job.Status)
	}
	if job.Error == "" {
		t.Error("job error message is empty")
	}
	// Completed freezes at the last successful card.
	if job.Completed != 1 {
		t.Errorf("completed = %d, want 1", job.Completed)
	}
	if job.OutputPath != "" {
		t.Errorf("OutputPath = %q, want empty on failure", job.OutputPath)
	}
}

func TestSubmitProject(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: encodeTestPNG(t, 30, 42)}
	projects := fakeProjects{
		game: Game{ID: "g1", Title: "My Game!", Slug: "my-game", SheetURL: "https://docs.google.com/spreadsheets/d/abc/edit"},
		decks: []Deck{
			{Name: "Heroes", TemplateID: "basic", SheetTabGID: "0", CardBackImage: "back.png"},
			{Name: "Items", TemplateID: "basic", SheetTabGID: "1"},
		},
	}
	rows := fakeRows{rows: map[string][]CardData{
		"0": testCards(2),
		"1": testCards(3),
	}}
	exp, outDir := newTestExporter(t, renderer, rows, projects)

	jobID, err := exp.SubmitProject(context.Background(), "g1", ExportOptions{Format: FormatPNG})
	if err != nil {
		t.Fatalf("SubmitProject() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusComplete {
		t.Fatalf("status = %q (%s), want complete", job.Status, job.Error)
	}
	if job.Total != 5 || job.Completed != 5 {
		t.Errorf("completed %d/%d, want 5/5", job.Completed, job.Total)
	}
	if len(job.OutputPaths) != 2 {
		t.Fatalf("OutputPaths = %v, want one per deck", job.OutputPaths)
	}

	// Punctuation is stripped from the game folder name.
	gameDir := filepath.Join(outDir, "My Game-1700000000")
	if job.OutputPath != gameDir {
		t.Errorf("OutputPath = %q, want %q", job.OutputPath, gameDir)
	}
	for i := 1; i <= 2; i++ {
		if _, err := os.Stat(filepath.Join(gameDir, "Heroes", fmt.Sprintf("card-%d.png", i))); err != nil {
			t.Errorf("missing Heroes card-%d.png: %v", i, err)
		}
	}
	// Deck card backs are always included in project exports.
	if _, err := os.Stat(filepath.Join(gameDir, "Heroes", "card-back.png")); err != nil {
		t.Errorf("missing Heroes card back: %v", err)
	}
	if _, err := os.Stat(filepath.Join(gameDir, "Items", "card-back.png")); err == nil {
		t.Error("Items has a card back but no CardBackImage is set")
	}
}

func TestSubmitProjectValidation(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: []byte("png")}
	ctx := context.Background()

	t.Run("unknown game", func(t *testing.T) {
		t.Parallel()
		exp, _ := newTestExporter(t, renderer, fakeRows{}, fakeProjects{game: Game{ID: "g1"}})
		if _, err := exp.SubmitProject(ctx, "nope", ExportOptions{Format: FormatPNG}); !errors.Is(err, ErrGameNotFound) {
			t.Errorf("error = %v, want ErrGameNotFound", err)
		}
	})

	t.Run("empty project fails before job creation", func(t *testing.T) {
		t.Parallel()
		exp, _ := newTestExporter(t, renderer, fakeRows{}, fakeProjects{game: Game{ID: "g1"}})
		if _, err := exp.SubmitProject(ctx, "g1", ExportOptions{Format: FormatPNG}); !errors.Is(err, ErrEmptyProject) {
			t.Errorf("error = %v, want ErrEmptyProject", err)
		}
		if _, ok := exp.Job("job-1"); ok {
			t.Error("job record created for a rejected submission")
		}
	})

	t.Run("missing stores", func(t *testing.T) {
		t.Parallel()
		exp, _ := newTestExporter(t, renderer, nil, nil)
		if _, err := exp.SubmitProject(ctx, "g1", ExportOptions{Format: FormatPNG}); !errors.Is(err, ErrNoProjectSource) {
			t.Errorf("error = %v, want ErrNoProjectSource", err)
		}
	})
}

func TestSubmitProjectSheetFailure(t *testing.T) {
	t.Parallel()

	renderer := &fakeRenderer{png: []byte("png")}
	projects := fakeProjects{
		game:  Game{ID: "g1", Title: "G", Slug: "g"},
		decks: []Deck{{Name: "Heroes", TemplateID: "basic"}},
	}
	exp, _ := newTestExporter(t, renderer, fakeRows{err: ErrSheetFetch}, projects)

	jobID, err := exp.SubmitProject(context.Background(), "g1", ExportOptions{Format: FormatPNG})
	if err != nil {
		t.Fatalf("SubmitProject() error: %v", err)
	}

	job := waitForJob(t, exp, jobID)
	if job.Status != StatusError {
		t.Fatalf("status = %q, want error", job.Status)
	}
	if renderer.calls.Load() != 0 {
		t.Errorf("renderer called %d times after fetch failure, want 0", renderer.calls.Load())
	}
}
