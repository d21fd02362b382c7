package cardmaker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

var _ TemplateStore = (*FSTemplateStore)(nil)

// templateIDPattern restricts template ids to names that cannot escape the
// templates directory.
var templateIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-_]*$`)

// FSTemplateStore reads card templates from a directory tree:
//
//	<dir>/<id>/manifest.json
//	<dir>/<id>/template.html
//	<dir>/<id>/template.css
type FSTemplateStore struct {
	dir string
}

// NewFSTemplateStore creates a store rooted at dir.
func NewFSTemplateStore(dir string) *FSTemplateStore {
	return &FSTemplateStore{dir: dir}
}

// Template loads a template's manifest.
func (s *FSTemplateStore) Template(id string) (CardTemplate, error) {
	if !templateIDPattern.MatchString(id) {
		return CardTemplate{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, id, "manifest.json"))
	if err != nil {
		return CardTemplate{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	var tmpl CardTemplate
	if err := json.Unmarshal(raw, &tmpl); err != nil {
		return CardTemplate{}, fmt.Errorf("parsing template manifest %q: %w", id, err)
	}
	tmpl.ID = id
	return tmpl, nil
}

// TemplateAssets loads a template's HTML and CSS.
func (s *FSTemplateStore) TemplateAssets(id string) (string, string, error) {
	if !templateIDPattern.MatchString(id) {
		return "", "", fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}

	htmlRaw, err := os.ReadFile(filepath.Join(s.dir, id, "template.html"))
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	// CSS is optional; a missing file means the template styles inline.
	cssRaw, err := os.ReadFile(filepath.Join(s.dir, id, "template.css"))
	if err != nil && !os.IsNotExist(err) {
		return "", "", fmt.Errorf("reading template css %q: %w", id, err)
	}
	return string(htmlRaw), string(cssRaw), nil
}

// List returns every valid template, sorted by id. Directories without a
// parseable manifest are skipped, not fatal.
func (s *FSTemplateStore) List() ([]CardTemplate, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading templates directory: %w", err)
	}

	templates := make([]CardTemplate, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		tmpl, err := s.Template(entry.Name())
		if err != nil {
			continue
		}
		templates = append(templates, tmpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates, nil
}
