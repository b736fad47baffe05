// Package catalog provides the kana decks and loads custom decks from files.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/example/kanadeck/pkg/models"
	"github.com/go-playground/validator/v10"
)

// Built-in deck names
const (
	Hiragana = "hiragana"
	Katakana = "katakana"
)

// MaxDeckName is the longest deck name in bytes that fits in button callback data
const MaxDeckName = 32

var (
	// ErrUnknownDeck is returned for deck names that are not registered
	ErrUnknownDeck = errors.New("catalog: unknown deck")
	// ErrDuplicateSymbol is returned when a deck lists a symbol twice
	ErrDuplicateSymbol = errors.New("catalog: duplicate symbol")
)

//go:embed data/*.json
var builtinFS embed.FS

var validate = validator.New()

// Builtin returns a copy of a built-in deck
func Builtin(name string) ([]models.Item, error) {
	if name != Hiragana && name != Katakana {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, name)
	}
	data, err := builtinFS.ReadFile("data/" + name + ".json")
	if err != nil {
		return nil, fmt.Errorf("failed to read built-in deck %s: %w", name, err)
	}
	raw, err := decodeJSON(data)
	if err != nil {
		return nil, err
	}
	items := make([]models.Item, len(raw))
	for i, r := range raw {
		items[i] = r.item()
	}
	return items, nil
}

// Validate checks required fields and symbol uniqueness
func Validate(items []models.Item) error {
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := validate.Struct(item); err != nil {
			return fmt.Errorf("item %d: %w", i+1, err)
		}
		if seen[item.Symbol] {
			return fmt.Errorf("%w: %q", ErrDuplicateSymbol, item.Symbol)
		}
		seen[item.Symbol] = true
	}
	return nil
}

// Registry maps deck names to their items
type Registry struct {
	mu    sync.RWMutex
	decks map[string][]models.Item
}

// NewRegistry creates a registry holding the built-in decks
func NewRegistry() (*Registry, error) {
	r := &Registry{decks: make(map[string][]models.Item)}
	for _, name := range []string{Hiragana, Katakana} {
		items, err := Builtin(name)
		if err != nil {
			return nil, err
		}
		if err := r.Register(name, items); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates and stores a deck, replacing any deck of the same name
func (r *Registry) Register(name string, items []models.Item) error {
	if name == "" {
		return fmt.Errorf("catalog: deck name cannot be empty")
	}
	if len(name) > MaxDeckName {
		return fmt.Errorf("catalog: deck name %q is longer than %d bytes", name, MaxDeckName)
	}
	if err := Validate(items); err != nil {
		return fmt.Errorf("invalid deck %s: %w", name, err)
	}

	stored := make([]models.Item, len(items))
	copy(stored, items)

	r.mu.Lock()
	r.decks[name] = stored
	r.mu.Unlock()
	return nil
}

// Items returns a copy of the deck's items in catalog order
func (r *Registry) Items(name string) ([]models.Item, error) {
	r.mu.RLock()
	items, ok := r.decks[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeck, name)
	}

	out := make([]models.Item, len(items))
	copy(out, items)
	return out, nil
}

// Has reports whether a deck is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decks[name]
	return ok
}

// Names returns the registered deck names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.decks))
	for name := range r.decks {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
