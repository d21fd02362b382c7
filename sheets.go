package cardmaker

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var _ RowSource = (*SheetsRowSource)(nil)

// sheetIDPattern extracts the spreadsheet id from a Google Sheets URL.
var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

const defaultSheetTimeout = 30 * time.Second

// SheetsRowSource fetches card rows from a published Google Sheet's CSV
// export endpoint.
type SheetsRowSource struct {
	client *http.Client
}

// NewSheetsRowSource creates a row source. A nil client gets a default
// with a 30s timeout.
func NewSheetsRowSource(client *http.Client) *SheetsRowSource {
	if client == nil {
		client = &http.Client{Timeout: defaultSheetTimeout}
	}
	return &SheetsRowSource{client: client}
}

// Rows fetches one sheet tab and parses it. The first row is the header;
// every later row becomes one card keyed by header name. Fully empty rows
// are skipped.
func (s *SheetsRowSource) Rows(ctx context.Context, sheetURL, tabGID string) (SheetData, error) {
	exportURL, err := sheetCSVURL(sheetURL, tabGID)
	if err != nil {
		return SheetData{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return SheetData{}, fmt.Errorf("%w: %v", ErrSheetURL, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return SheetData{}, fmt.Errorf("%w: %v", ErrSheetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return SheetData{}, fmt.Errorf("%w: status %d", ErrSheetFetch, resp.StatusCode)
	}
	// A private or unpublished sheet answers the CSV endpoint with a login
	// page instead of an HTTP error.
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		return SheetData{}, ErrSheetNotCSV
	}

	return parseSheetCSV(resp.Body)
}

// sheetCSVURL normalizes a Google Sheets URL into its CSV export form.
// URLs already pointing at a CSV export pass through unchanged (the tab
// gid is assumed to be baked in).
func sheetCSVURL(sheetURL, tabGID string) (string, error) {
	if sheetURL == "" {
		return "", fmt.Errorf("%w: empty", ErrSheetURL)
	}
	if strings.Contains(sheetURL, "format=csv") || strings.Contains(sheetURL, "output=csv") {
		return sheetURL, nil
	}

	m := sheetIDPattern.FindStringSubmatch(sheetURL)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrSheetURL, sheetURL)
	}

	exportURL := fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv", m[1])
	if tabGID != "" {
		exportURL += "&gid=" + url.QueryEscape(tabGID)
	}
	return exportURL, nil
}

func parseSheetCSV(r io.Reader) (SheetData, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows are common in hand-edited sheets

	records, err := reader.ReadAll()
	if err != nil {
		return SheetData{}, fmt.Errorf("%w: %v", ErrSheetFetch, err)
	}
	if len(records) == 0 {
		return SheetData{}, ErrSheetEmpty
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]CardData, 0, len(records)-1)
	for _, record := range records[1:] {
		card := make(CardData, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" || i >= len(record) {
				continue
			}
			value := strings.TrimSpace(record[i])
			card[header] = value
			if value != "" {
				empty = false
			}
		}
		if !empty {
			rows = append(rows, card)
		}
	}
	return SheetData{Headers: headers, Rows: rows}, nil
}
