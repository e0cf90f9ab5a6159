package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// MemoryStore is an in-memory Store for tests. Documents are kept encoded so
// callers never share structure with the store.
type MemoryStore struct {
	mu       sync.Mutex
	patterns []byte
	errs     []byte
	log      []models.LogEntry

	// Writes counts successful save and append calls.
	Writes int

	// SaveErr, when set, is returned by every save and append.
	SaveErr error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadPatterns implements Store.
func (m *MemoryStore) LoadPatterns(ctx context.Context) (models.PatternsDB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db := models.NewPatternsDB()
	if m.patterns == nil {
		return db, nil
	}
	if err := json.Unmarshal(m.patterns, &db); err != nil {
		return models.NewPatternsDB(), fmt.Errorf("%w: patterns: %v", ErrCorrupt, err)
	}
	db.Normalize()
	return db, nil
}

// SavePatterns implements Store.
func (m *MemoryStore) SavePatterns(ctx context.Context, db models.PatternsDB) error {
	return m.save(&m.patterns, db)
}

// LoadErrors implements Store.
func (m *MemoryStore) LoadErrors(ctx context.Context) (*models.ErrorsDB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db := models.NewErrorsDB()
	if m.errs == nil {
		return db, nil
	}
	if err := json.Unmarshal(m.errs, db); err != nil {
		return models.NewErrorsDB(), fmt.Errorf("%w: errors: %v", ErrCorrupt, err)
	}
	db.Normalize()
	return db, nil
}

// SaveErrors implements Store.
func (m *MemoryStore) SaveErrors(ctx context.Context, db *models.ErrorsDB) error {
	return m.save(&m.errs, db)
}

// AppendLog implements Store.
func (m *MemoryStore) AppendLog(ctx context.Context, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.log = append(m.log, entry)
	m.Writes++
	return nil
}

// LogEntries implements Store.
func (m *MemoryStore) LogEntries(ctx context.Context) ([]models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.LogEntry(nil), m.log...), nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

// WriteCount returns Writes under the lock.
func (m *MemoryStore) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Writes
}

// Corrupt replaces both documents with undecodable bytes.
func (m *MemoryStore) Corrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns = []byte("{not json")
	m.errs = []byte("{not json")
}

func (m *MemoryStore) save(dst *[]byte, v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*dst = data
	m.Writes++
	return nil
}
