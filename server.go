package cardmaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Addr      string // listen address (default: "127.0.0.1:3000")
	OutputDir string // export artifacts, served under /output/
}

// Server exposes the card pipeline over HTTP: previews, export job
// submission and polling, thin reads over the stores, and static serving
// of game artwork and export output.
type Server struct {
	svc    *Service
	games  *FSGameStore
	rows   RowSource
	logger *log.Logger
	router chi.Router
	addr   string
}

// NewServer creates a Server around an existing Service. games and rows
// may be nil; the routes depending on them answer 404/400.
func NewServer(svc *Service, games *FSGameStore, rows RowSource, logger *log.Logger, cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:3000"
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		svc:    svc,
		games:  games,
		rows:   rows,
		logger: logger,
		addr:   cfg.Addr,
	}
	s.router = s.buildRouter(cfg)
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server with timeouts sized for
// long-running render requests.
func (s *Server) ListenAndServe() error {
	return s.httpServer().ListenAndServe()
}

// Run serves until ctx is cancelled, then shuts down gracefully with a
// short drain window.
func (s *Server) Run(ctx context.Context) error {
	srv := s.httpServer()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) httpServer() *http.Server {
	return &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // batch previews render inline
		IdleTimeout:       2 * time.Minute,
	}
}

func (s *Server) buildRouter(cfg ServerConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/cards/preview", s.handlePreview)
		r.Post("/cards/preview-batch", s.handlePreviewBatch)

		r.Post("/export", s.handleExport)
		r.Post("/export/game", s.handleExportGame)
		r.Get("/export/{jobID}", s.handleJobStatus)

		r.Get("/templates", s.handleTemplateList)
		r.Get("/templates/{templateID}", s.handleTemplateGet)
		r.Get("/games", s.handleGameList)
		r.Get("/games/{gameID}/decks", s.handleDeckList)
		r.Post("/sheets/fetch", s.handleSheetFetch)
	})

	if s.games != nil {
		r.Handle("/games/*", http.StripPrefix("/games/", http.FileServer(http.Dir(s.games.Dir()))))
	}
	if cfg.OutputDir != "" {
		r.Handle("/output/*", http.StripPrefix("/output/", http.FileServer(http.Dir(cfg.OutputDir))))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// previewRequest is the wire form of a preview submission. The batch
// variant carries multiple cards of the same template.
type previewRequest struct {
	TemplateID string       `json:"templateId"`
	Card       CardData     `json:"card"`
	Cards      []CardData   `json:"cards"`
	Mapping    FieldMapping `json:"mapping"`
	GameID     string       `json:"gameId"`
	CardSize   CardSizeSpec `json:"cardSize"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	dataURL, err := s.svc.RenderPreview(r.Context(), PreviewRequest{
		TemplateID: req.TemplateID,
		Card:       req.Card,
		Mapping:    req.Mapping,
		GameID:     req.GameID,
		CardSize:   req.CardSize,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"dataUrl": dataURL})
}

func (s *Server) handlePreviewBatch(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	reqs := make([]PreviewRequest, len(req.Cards))
	for i, card := range req.Cards {
		reqs[i] = PreviewRequest{
			TemplateID: req.TemplateID,
			Card:       card,
			Mapping:    req.Mapping,
			GameID:     req.GameID,
			CardSize:   req.CardSize,
		}
	}
	dataURLs, err := s.svc.RenderPreviewBatch(r.Context(), reqs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"dataUrls": dataURLs})
}

// exportOptionsRequest mirrors ExportOptions with a tri-state crop marks
// flag: absent means enabled.
type exportOptionsRequest struct {
	Format          ExportFormat `json:"format"`
	SelectedCards   []int        `json:"selectedCards"`
	PDFPageSize     string       `json:"pdfPageSize"`
	PDFCropMarks    *bool        `json:"pdfCropMarks"`
	SpriteColumns   int          `json:"spriteColumns"`
	IncludeCardBack bool         `json:"includeCardBack"`
	CardBackImage   string       `json:"cardBackImage"`
	CardSize        CardSizeSpec `json:"cardSize"`
}

func (o exportOptionsRequest) toOptions() ExportOptions {
	cropMarks := true
	if o.PDFCropMarks != nil {
		cropMarks = *o.PDFCropMarks
	}
	return ExportOptions{
		Format:          o.Format,
		SelectedCards:   o.SelectedCards,
		PDFPageSize:     o.PDFPageSize,
		PDFCropMarks:    cropMarks,
		SpriteColumns:   o.SpriteColumns,
		IncludeCardBack: o.IncludeCardBack,
		CardBackImage:   o.CardBackImage,
		CardSize:        o.CardSize,
	}
}

type exportRequest struct {
	TemplateID string               `json:"templateId"`
	Cards      []CardData           `json:"cards"`
	Mapping    FieldMapping         `json:"mapping"`
	GameID     string               `json:"gameId"`
	Options    exportOptionsRequest `json:"options"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	jobID, err := s.svc.Exporter().Submit(r.Context(), ExportRequest{
		TemplateID: req.TemplateID,
		Cards:      req.Cards,
		Mapping:    req.Mapping,
		Options:    req.Options.toOptions(),
		GameID:     req.GameID,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

type exportGameRequest struct {
	GameID  string               `json:"gameId"`
	Options exportOptionsRequest `json:"options"`
}

func (s *Server) handleExportGame(w http.ResponseWriter, r *http.Request) {
	var req exportGameRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	jobID, err := s.svc.Exporter().SubmitProject(r.Context(), req.GameID, req.Options.toOptions())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.svc.Exporter().Job(chi.URLParam(r, "jobID"))
	if !ok {
		s.writeError(w, ErrJobNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTemplateList(w http.ResponseWriter, r *http.Request) {
	if s.svc.templates == nil {
		s.writeJSON(w, http.StatusOK, []CardTemplate{})
		return
	}
	templates, err := s.svc.templates.List()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templates)
}

func (s *Server) handleTemplateGet(w http.ResponseWriter, r *http.Request) {
	if s.svc.templates == nil {
		s.writeError(w, ErrTemplateNotFound)
		return
	}
	tmpl, err := s.svc.templates.Template(chi.URLParam(r, "templateID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tmpl)
}

func (s *Server) handleGameList(w http.ResponseWriter, r *http.Request) {
	if s.games == nil {
		s.writeJSON(w, http.StatusOK, []Game{})
		return
	}
	games, err := s.games.Games(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, games)
}

func (s *Server) handleDeckList(w http.ResponseWriter, r *http.Request) {
	if s.games == nil {
		s.writeError(w, ErrGameNotFound)
		return
	}
	decks, err := s.games.Decks(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decks)
}

type sheetFetchRequest struct {
	SheetURL string `json:"sheetUrl"`
	TabGID   string `json:"tabGid"`
}

func (s *Server) handleSheetFetch(w http.ResponseWriter, r *http.Request) {
	if s.rows == nil {
		s.writeError(w, ErrSheetFetch)
		return
	}
	var req sheetFetchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	data, err := s.rows.Rows(r.Context(), req.SheetURL, req.TabGID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

// decodeJSON parses the request body, answering 400 on malformed input.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

// writeError maps sentinel errors onto HTTP statuses: bad input is 400,
// missing things are 404, everything else is 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrMissingTemplate),
		errors.Is(err, ErrNoCards),
		errors.Is(err, ErrEmptyProject),
		errors.Is(err, ErrCardTooLarge),
		errors.Is(err, ErrUnknownFormat),
		errors.Is(err, ErrUnknownPageSize),
		errors.Is(err, ErrUnknownPreset),
		errors.Is(err, ErrCardTooLargeForPage),
		errors.Is(err, ErrSheetURL),
		errors.Is(err, ErrSheetNotCSV),
		errors.Is(err, ErrSheetEmpty):
		status = http.StatusBadRequest
	case errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrGameNotFound),
		errors.Is(err, ErrDeckNotFound),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrCardBackNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
