package cardmaker

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// PDF layout constants in points (72 pt = 1 inch).
const (
	pdfMargin      = 36.0 // 0.5 inch on all sides
	cropMarkLength = 18.0 // 0.25 inch
	cropMarkGap    = 2.0  // offset between card corner and mark
	cropMarkWidth  = 0.5
	pointsPerInch  = 72.0
)

// pageSpec is a physical page size in points.
type pageSpec struct {
	Width  float64
	Height float64
}

var pdfPageSizes = map[string]pageSpec{
	"letter": {612, 792},      // 8.5 x 11 in
	"a4":     {595.28, 841.89}, // 210 x 297 mm
}

// pdfPageSpec resolves a page size name; empty means letter.
func pdfPageSpec(name string) (pageSpec, error) {
	if name == "" {
		name = "letter"
	}
	spec, ok := pdfPageSizes[name]
	if !ok {
		return pageSpec{}, fmt.Errorf("%w: %q", ErrUnknownPageSize, name)
	}
	return spec, nil
}

// PDFOptions configures ComposePDF.
type PDFOptions struct {
	PageSize         string // "letter" (default) or "a4"
	CropMarks        bool
	CardWidthInches  float64 // 0 = poker default
	CardHeightInches float64
}

// pdfGrid is the per-page placement geometry: cards laid out in a centered
// grid, leftover page space split evenly into the offsets.
type pdfGrid struct {
	cols, rows   int
	cardsPerPage int
	offsetX      float64
	offsetY      float64
}

// pdfGridLayout computes how many cards fit inside the page margins and
// where the centered grid starts. A card larger than the usable page area
// is a configuration error, never silently handled.
func pdfGridLayout(page pageSpec, cardW, cardH float64) (pdfGrid, error) {
	usableW := page.Width - 2*pdfMargin
	usableH := page.Height - 2*pdfMargin
	cols := int(usableW / cardW)
	rows := int(usableH / cardH)
	if cols < 1 || rows < 1 {
		return pdfGrid{}, fmt.Errorf("%w: %.0fx%.0fpt card on %.0fx%.0fpt page",
			ErrCardTooLargeForPage, cardW, cardH, page.Width, page.Height)
	}
	return pdfGrid{
		cols:         cols,
		rows:         rows,
		cardsPerPage: cols * rows,
		offsetX:      (page.Width - float64(cols)*cardW) / 2,
		offsetY:      (page.Height - float64(rows)*cardH) / 2,
	}, nil
}

// ComposePDF lays rendered card images onto fixed-size pages in a centered
// grid and paginates. Source order fully determines grid position: card j
// of a page sits at column j mod cols, row j div cols, filling rows top to
// bottom. Optional crop marks are drawn just outside each card's corners.
func ComposePDF(cards [][]byte, opts PDFOptions) ([]byte, error) {
	if len(cards) == 0 {
		return nil, ErrNoCards
	}

	page, err := pdfPageSpec(opts.PageSize)
	if err != nil {
		return nil, err
	}

	cardW := opts.CardWidthInches * pointsPerInch
	cardH := opts.CardHeightInches * pointsPerInch
	if cardW <= 0 || cardH <= 0 {
		cardW = CardWidthInches * pointsPerInch
		cardH = CardHeightInches * pointsPerInch
	}

	grid, err := pdfGridLayout(page, cardW, cardH)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: page.Width, Ht: page.Height},
	})
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetLineWidth(cropMarkWidth)
	pdf.SetDrawColor(0, 0, 0)

	imgOpts := gofpdf.ImageOptions{ImageType: "PNG"}

	for start := 0; start < len(cards); start += grid.cardsPerPage {
		pdf.AddPage()

		end := start + grid.cardsPerPage
		if end > len(cards) {
			end = len(cards)
		}
		for j, card := range cards[start:end] {
			col := j % grid.cols
			row := j / grid.cols
			x := grid.offsetX + float64(col)*cardW
			y := grid.offsetY + float64(row)*cardH

			name := fmt.Sprintf("card-%d", start+j)
			pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(card))
			pdf.ImageOptions(name, x, y, cardW, cardH, false, imgOpts, 0, "")

			if opts.CropMarks {
				drawCropMarks(pdf, x, y, cardW, cardH)
			}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("composing PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// drawCropMarks draws four perpendicular line pairs at a card's corners,
// offset outward by cropMarkGap and pointing away from the card. x,y is
// the card's top-left in gofpdf's top-down coordinate system.
func drawCropMarks(pdf *gofpdf.Fpdf, x, y, w, h float64) {
	corners := []struct{ cx, cy float64 }{
		{x, y},         // top-left
		{x + w, y},     // top-right
		{x, y + h},     // bottom-left
		{x + w, y + h}, // bottom-right
	}

	for _, c := range corners {
		hDir := 1.0
		if c.cx == x {
			hDir = -1
		}
		vDir := 1.0
		if c.cy == y {
			vDir = -1
		}

		pdf.Line(c.cx+hDir*cropMarkGap, c.cy, c.cx+hDir*(cropMarkGap+cropMarkLength), c.cy)
		pdf.Line(c.cx, c.cy+vDir*cropMarkGap, c.cx, c.cy+vDir*(cropMarkGap+cropMarkLength))
	}
}
