package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/selfcorrect/internal/models"
)

// FileStore keeps each document in its own JSON file and the correction log
// as a plain text file, all inside one directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create learning data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

// LoadPatterns implements Store.
func (s *FileStore) LoadPatterns(ctx context.Context) (models.PatternsDB, error) {
	db := models.NewPatternsDB()
	found, err := s.readJSON(PatternsFile, &db)
	if err != nil || !found {
		return models.NewPatternsDB(), err
	}
	db.Normalize()
	return db, nil
}

// SavePatterns implements Store.
func (s *FileStore) SavePatterns(ctx context.Context, db models.PatternsDB) error {
	return s.writeJSON(PatternsFile, db)
}

// LoadErrors implements Store.
func (s *FileStore) LoadErrors(ctx context.Context) (*models.ErrorsDB, error) {
	db := models.NewErrorsDB()
	found, err := s.readJSON(ErrorsFile, db)
	if err != nil || !found {
		return models.NewErrorsDB(), err
	}
	db.Normalize()
	return db, nil
}

// SaveErrors implements Store.
func (s *FileStore) SaveErrors(ctx context.Context, db *models.ErrorsDB) error {
	return s.writeJSON(ErrorsFile, db)
}

// AppendLog implements Store. The header is written when the file is new.
func (s *FileStore) AppendLog(ctx context.Context, entry models.LogEntry) error {
	path := filepath.Join(s.dir, LogFile)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open correction log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat correction log: %w", err)
	}
	var b strings.Builder
	if info.Size() == 0 {
		b.WriteString(LogHeader)
	}
	b.WriteString(FormatLogLine(entry))
	b.WriteByte('\n')
	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("append correction log: %w", err)
	}
	return nil
}

// LogEntries implements Store. Lines that do not parse are skipped.
func (s *FileStore) LogEntries(ctx context.Context) ([]models.LogEntry, error) {
	f, err := os.Open(filepath.Join(s.dir, LogFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open correction log: %w", err)
	}
	defer f.Close()

	var entries []models.LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := ParseLogLine(line)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read correction log: %w", err)
	}
	return entries, nil
}

// Close implements Store.
func (s *FileStore) Close() error { return nil }

// readJSON decodes name into v. found is false when the file does not exist.
func (s *FileStore) readJSON(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

// writeJSON replaces name atomically via a temp file and rename.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
