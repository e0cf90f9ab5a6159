package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/selfcorrect/internal/config"
)

// Document file names inside the learning-data directory.
const (
	PatternsFile = "patterns.json"
	ErrorsFile   = "errors.json"
	LogFile      = "corrections.log"
	SQLiteFile   = "selfcorrect.db"
)

// DataDir returns the learning-data directory for a project root.
func DataDir(root string) string {
	return filepath.Join(config.Dir(root), "learning-data")
}

// BackupDir returns the directory holding per-correction backups.
func BackupDir(root string) string {
	return filepath.Join(config.Dir(root), "backups")
}

// SQLitePath returns the SQLite database path for a project root.
func SQLitePath(root string) string {
	return filepath.Join(DataDir(root), SQLiteFile)
}

// EnsureDirs creates the .selfcorrect layout under root.
func EnsureDirs(root string) error {
	for _, dir := range []string{config.Dir(root), DataDir(root), BackupDir(root)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// selfcorrectGitignore is the default .gitignore content for .selfcorrect directories.
const selfcorrectGitignore = `# SQLite database files
learning-data/selfcorrect.db
learning-data/selfcorrect.db-shm
learning-data/selfcorrect.db-wal

# File snapshots taken before corrections
backups/
`

// EnsureGitignore creates a .gitignore in the given .selfcorrect directory if
// one does not already exist.
func EnsureGitignore(dir string) error {
	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); err == nil {
		return nil // already exists, respect user customizations
	}
	if err := os.WriteFile(gitignorePath, []byte(selfcorrectGitignore), 0600); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	return nil
}
