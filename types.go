package cardmaker

import "fmt"

// CardData is one row of tabular source data, keyed by column header.
type CardData map[string]string

// FieldMapping maps template field names to source column names.
// Keys need not cover all template fields; unmapped fields render empty.
type FieldMapping map[string]string

// CardTemplate describes a card template's manifest.
type CardTemplate struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Width       float64         `json:"width"`  // inches
	Height      float64         `json:"height"` // inches
	Fields      []TemplateField `json:"fields"`
	ImageSlots  []ImageSlot     `json:"imageSlots"`
}

// TemplateField is a data-driven text field declared by a template.
type TemplateField struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Type    string `json:"type"` // "text", "number", "multiline"
	Default string `json:"default,omitempty"`
}

// ImageSlot is an artwork placeholder declared by a template.
type ImageSlot struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Width  int    `json:"width"`  // CSS px in template
	Height int    `json:"height"` // CSS px in template
}

// ExportFormat selects the artifact type produced by an export job.
type ExportFormat string

// Supported export formats.
const (
	FormatPNG    ExportFormat = "png"
	FormatPDF    ExportFormat = "pdf"
	FormatSprite ExportFormat = "sprite"
)

// Valid reports whether f is a supported export format.
func (f ExportFormat) Valid() bool {
	switch f {
	case FormatPNG, FormatPDF, FormatSprite:
		return true
	}
	return false
}

// ExportOptions holds format selection and format-specific knobs.
type ExportOptions struct {
	Format ExportFormat `json:"format"`

	// SelectedCards are card indices to export; empty means all.
	SelectedCards []int `json:"selectedCards,omitempty"`

	// PDF-specific.
	PDFPageSize  string `json:"pdfPageSize,omitempty"` // "letter" (default) or "a4"
	PDFCropMarks bool   `json:"pdfCropMarks,omitempty"`

	// Sprite-sheet-specific: columns in the grid (0 = derive from count).
	SpriteColumns int `json:"spriteColumns,omitempty"`

	// Card back handling.
	IncludeCardBack bool   `json:"includeCardBack,omitempty"`
	CardBackImage   string `json:"cardBackImage,omitempty"`

	// Card size; zero value means the poker preset.
	CardSize CardSizeSpec `json:"cardSize,omitempty"`
}

// Validate checks options before a job is created.
func (o ExportOptions) Validate() error {
	if !o.Format.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownFormat, o.Format)
	}
	if o.Format == FormatPDF {
		if _, err := pdfPageSpec(o.PDFPageSize); err != nil {
			return err
		}
	}
	if _, err := o.CardSize.Resolve(); err != nil {
		return err
	}
	return nil
}

// Game groups decks sharing a data source and artwork folder.
type Game struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	SheetURL string `json:"sheetUrl"`
}

// Deck binds a template, a field mapping, and one sheet tab of row data.
type Deck struct {
	ID            string       `json:"id"`
	GameID        string       `json:"gameId"`
	Name          string       `json:"name"`
	TemplateID    string       `json:"templateId"`
	Mapping       FieldMapping `json:"mapping"`
	SheetTabGID   string       `json:"sheetTabGid,omitempty"`
	CardBackImage string       `json:"cardBackImage,omitempty"`
	CardSize      CardSizeSpec `json:"cardSize,omitempty"`
}

// SheetData is the parsed result of one sheet tab.
type SheetData struct {
	Headers []string   `json:"headers"`
	Rows    []CardData `json:"rows"`
}
