package cardmaker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	_ ProjectStore = (*FSGameStore)(nil)
	_ ArtworkStore = (*FSGameStore)(nil)
)

// FSGameStore reads games and their decks from a directory tree:
//
//	<dir>/<slug>/game.json
//	<dir>/<slug>/decks/<name>.json
//	<dir>/<slug>/artwork/...            (served over HTTP)
//	<dir>/<slug>/artwork/cardback/...   (read from disk for exports)
//
// The same directory doubles as the artwork source: publicBase is the URL
// prefix the browser reaches the artwork tree at (e.g.
// "http://localhost:8080/games").
type FSGameStore struct {
	dir        string
	publicBase string
}

// NewFSGameStore creates a store rooted at dir, serving artwork under
// publicBase.
func NewFSGameStore(dir, publicBase string) *FSGameStore {
	return &FSGameStore{dir: dir, publicBase: strings.TrimRight(publicBase, "/")}
}

// Game finds a game by id or slug.
func (s *FSGameStore) Game(ctx context.Context, gameID string) (Game, error) {
	games, err := s.Games(ctx)
	if err != nil {
		return Game{}, err
	}
	for _, game := range games {
		if game.ID == gameID || game.Slug == gameID {
			return game, nil
		}
	}
	return Game{}, fmt.Errorf("%w: %q", ErrGameNotFound, gameID)
}

// Games returns every game in the store, sorted by slug. Directories
// without a parseable game.json are skipped.
func (s *FSGameStore) Games(ctx context.Context) ([]Game, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading games directory: %w", err)
	}

	games := make([]Game, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		game, err := s.readGame(entry.Name())
		if err != nil {
			continue
		}
		games = append(games, game)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Slug < games[j].Slug })
	return games, nil
}

// Decks returns a game's decks, sorted by name.
func (s *FSGameStore) Decks(ctx context.Context, gameID string) ([]Deck, error) {
	game, err := s.Game(ctx, gameID)
	if err != nil {
		return nil, err
	}

	decksDir := filepath.Join(s.dir, game.Slug, "decks")
	entries, err := os.ReadDir(decksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading decks for %q: %w", game.Slug, err)
	}

	decks := make([]Deck, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(decksDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading deck %q: %w", entry.Name(), err)
		}
		var deck Deck
		if err := json.Unmarshal(raw, &deck); err != nil {
			return nil, fmt.Errorf("parsing deck %q: %w", entry.Name(), err)
		}
		deck.GameID = game.ID
		decks = append(decks, deck)
	}
	sort.Slice(decks, func(i, j int) bool { return decks[i].Name < decks[j].Name })
	return decks, nil
}

// BaseURL returns the URL prefix the browser fetches a game's artwork
// from. Unknown game ids fall back to treating the id as the slug; a
// broken image in the preview beats failing the whole render.
func (s *FSGameStore) BaseURL(gameID string) string {
	slug := gameID
	if game, err := s.Game(context.Background(), gameID); err == nil {
		slug = game.Slug
	}
	return s.publicBase + "/" + slug
}

// CardBackFile resolves a card back image to its path on disk.
func (s *FSGameStore) CardBackFile(gameID, filename string) (string, error) {
	game, err := s.Game(context.Background(), gameID)
	if err != nil {
		return "", err
	}
	if filename == "" || filename != filepath.Base(filename) {
		return "", fmt.Errorf("%w: %q", ErrCardBackNotFound, filename)
	}

	path := filepath.Join(s.dir, game.Slug, "artwork", "cardback", filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %q", ErrCardBackNotFound, filename)
	}
	return path, nil
}

// ArtworkDir returns the directory a game's artwork is served from.
func (s *FSGameStore) ArtworkDir(slug string) string {
	return filepath.Join(s.dir, slug, "artwork")
}

// Dir returns the store's root directory.
func (s *FSGameStore) Dir() string {
	return s.dir
}

func (s *FSGameStore) readGame(slug string) (Game, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, slug, "game.json"))
	if err != nil {
		return Game{}, fmt.Errorf("%w: %q", ErrGameNotFound, slug)
	}
	var game Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return Game{}, fmt.Errorf("parsing game %q: %w", slug, err)
	}
	game.Slug = slug
	if game.ID == "" {
		game.ID = slug
	}
	return game, nil
}
