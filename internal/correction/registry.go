package correction

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nvandessel/selfcorrect/internal/models"
)

var (
	// ErrNotFound is returned when a file or text anchor a correction needs
	// is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalid is returned when a descriptor lacks a field its kind needs
	// or a value cannot be placed where the descriptor asks.
	ErrInvalid = errors.New("invalid correction")
)

// Result describes what a corrector changed.
type Result struct {
	Kind    models.CorrectionKind
	Files   []string // files rewritten
	Changed bool     // false when the files already held the correction
}

// Corrector applies one kind of correction.
type Corrector interface {
	Kind() models.CorrectionKind

	// Validate checks the descriptor's fields without touching the filesystem.
	Validate(desc models.CorrectionDescriptor) error

	// Apply performs the correction. It fails with ErrNotFound when a file
	// or anchor is missing.
	Apply(ctx context.Context, desc models.CorrectionDescriptor) (Result, error)
}

// Registry maps correction kinds to their correctors.
type Registry struct {
	mu    sync.RWMutex
	kinds map[models.CorrectionKind]Corrector
}

// NewRegistry returns a registry holding cs.
func NewRegistry(cs ...Corrector) *Registry {
	r := &Registry{kinds: make(map[models.CorrectionKind]Corrector)}
	for _, c := range cs {
		r.Register(c)
	}
	return r
}

// DefaultRegistry returns a registry with every built-in correction kind.
func DefaultRegistry() *Registry {
	return NewRegistry(
		SyntaxRewrite{},
		ValidationSnippet{},
		FixImport{},
		ConfigValue{},
		TypeValidation{},
	)
}

// Register adds c, replacing any corrector of the same kind.
func (r *Registry) Register(c Corrector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[c.Kind()] = c
}

// Lookup returns the corrector for kind.
func (r *Registry) Lookup(kind models.CorrectionKind) (Corrector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.kinds[kind]
	return c, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []models.CorrectionKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]models.CorrectionKind, 0, len(r.kinds))
	for k := range r.kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
