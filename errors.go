package cardmaker

import "errors"

// Sentinel errors for library operations.
var (
	// Validation errors, rejected before any job is created.
	ErrMissingTemplate = errors.New("template id cannot be empty")
	ErrNoCards         = errors.New("no cards to render")
	ErrEmptyProject    = errors.New("project has no decks")
	ErrCardTooLarge    = errors.New("card dimensions exceed maximum size")
	ErrUnknownFormat   = errors.New("unknown export format")
	ErrUnknownPageSize = errors.New("unknown PDF page size")
	ErrUnknownPreset   = errors.New("unknown card size preset")

	// Browser and render errors.
	ErrBrowserConnect = errors.New("failed to connect to browser")
	ErrSurfaceCreate  = errors.New("failed to create render surface")
	ErrPageLoad       = errors.New("failed to load card page")
	ErrCapture        = errors.New("failed to capture card image")
	ErrPoolClosed     = errors.New("surface pool is closed")

	// Composition errors.
	ErrCardTooLargeForPage = errors.New("card does not fit on the PDF page")
	ErrImageDecode         = errors.New("failed to decode card image")

	// Job errors.
	ErrJobNotFound      = errors.New("export job not found")
	ErrNoProjectSource  = errors.New("project export requires a project store and row source")
	ErrNoTemplateSource = errors.New("rendering requires a template store")

	// Collaborator store errors.
	ErrTemplateNotFound = errors.New("template not found")
	ErrGameNotFound     = errors.New("game not found")
	ErrDeckNotFound     = errors.New("deck not found")
	ErrCardBackNotFound = errors.New("card back image not found")
	ErrSheetURL         = errors.New("invalid Google Sheets URL")
	ErrSheetFetch       = errors.New("failed to fetch sheet data")
	ErrSheetNotCSV      = errors.New("sheet returned HTML instead of CSV")
	ErrSheetEmpty       = errors.New("sheet has no data")
)
