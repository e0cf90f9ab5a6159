// Package backup snapshots files before a correction mutates them and
// restores those snapshots when the correction fails or is interrupted.
//
// Each backup lives in its own directory named by the backup id and holds
// one snapshot per file plus a metadata record:
//
//	<dir>/<backup-id>/correction-metadata.json
//	<dir>/<backup-id>/<base>.<pathhash>.backup.<timestamp>[.zst]
package backup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/nvandessel/selfcorrect/internal/config"
	"github.com/nvandessel/selfcorrect/internal/logging"
	"github.com/nvandessel/selfcorrect/internal/models"
)

// ErrNotFound is returned when a backup id has no metadata record.
var ErrNotFound = errors.New("backup not found")

// MetadataFile is the metadata record name inside each backup directory.
const MetadataFile = "correction-metadata.json"

// stampLayout is fixed width so lexicographic order is chronological order.
const stampLayout = "20060102T150405.000000000Z"

const zstdExt = ".zst"

// Manager creates, lists, restores and prunes correction backups.
type Manager struct {
	dir      string
	keep     int
	compress bool
	logger   *zap.Logger

	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewManager returns a manager storing backups under dir.
func NewManager(dir string, cfg config.BackupConfig, logger *zap.Logger) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	keep := cfg.Keep
	if keep < 1 {
		keep = config.Default().Backup.Keep
	}
	return &Manager{
		dir:      dir,
		keep:     keep,
		compress: cfg.Compress,
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}, nil
}

// SetClock replaces the manager's time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// stamp returns a timestamp strictly after every previous one, so ids and
// snapshot names never collide even when the clock does not advance.
func (m *Manager) stamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now().UTC()
	if !t.After(m.last) {
		t = m.last.Add(time.Nanosecond)
	}
	m.last = t
	return t
}

// NewID returns a fresh backup id. Ids sort in creation order.
func (m *Manager) NewID(kind models.CorrectionKind) string {
	return fmt.Sprintf("correction-%s-%s", m.stamp().Format(stampLayout), kind)
}

// Backup snapshots every existing file the correction may touch and writes
// the metadata record with status created. Files that do not exist are
// skipped.
func (m *Manager) Backup(id string, desc models.CorrectionDescriptor) (models.BackupRecord, error) {
	dir := filepath.Join(m.dir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.BackupRecord{}, fmt.Errorf("create backup %s: %w", id, err)
	}

	rec := models.BackupRecord{
		BackupID:   id,
		Timestamp:  m.stamp(),
		Correction: desc,
		Status:     models.BackupCreated,
		Snapshots:  make(map[string]string),
	}

	for _, path := range desc.Files() {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				m.logger.Debug("skipping backup of missing file", zap.String("path", path))
				continue
			}
			return rec, fmt.Errorf("stat %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		name := m.snapshotName(path)
		if err := m.writeSnapshot(path, filepath.Join(dir, name)); err != nil {
			return rec, fmt.Errorf("snapshot %s: %w", path, err)
		}
		rec.Snapshots[path] = name
	}

	if err := m.writeRecord(rec); err != nil {
		return rec, err
	}
	m.logger.Debug("backup created", zap.String("id", id), zap.Int("files", len(rec.Snapshots)))
	return rec, nil
}

// MarkApplying records that the correction is about to mutate files.
func (m *Manager) MarkApplying(id string) error {
	return m.setStatus(id, models.BackupApplying)
}

// MarkApplied records that the correction completed.
func (m *Manager) MarkApplied(id string) error {
	return m.setStatus(id, models.BackupApplied)
}

// RollbackReport lists what a rollback restored and what it could not.
type RollbackReport struct {
	Restored []string
	Missing  []string
}

// Rollback restores each file of the correction from its newest snapshot
// and marks the record rolled_back. Restoration is best effort: files with
// no snapshot or a failed restore are reported in Missing and do not stop
// the others.
func (m *Manager) Rollback(id string) (RollbackReport, error) {
	var report RollbackReport
	rec, err := m.Get(id)
	if err != nil {
		return report, err
	}
	dir := filepath.Join(m.dir, id)

	for _, path := range rec.Correction.Files() {
		snap, ok := m.latestSnapshot(dir, path)
		if !ok {
			report.Missing = append(report.Missing, path)
			continue
		}
		if err := m.restoreSnapshot(filepath.Join(dir, snap), path); err != nil {
			m.logger.Warn("restore failed", zap.String("path", path), zap.Error(err))
			report.Missing = append(report.Missing, path)
			continue
		}
		report.Restored = append(report.Restored, path)
	}

	now := m.stamp()
	rec.Status = models.BackupRolledBack
	rec.RollbackTime = &now
	if err := m.writeRecord(rec); err != nil {
		return report, err
	}
	m.logger.Info("backup rolled back",
		zap.String("id", id),
		zap.Int("restored", len(report.Restored)),
		zap.Int("missing", len(report.Missing)))
	return report, nil
}

// RecoverInterrupted rolls back every correction left in the applying state
// by a crash and returns their ids.
func (m *Manager) RecoverInterrupted() ([]string, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}
	var recovered []string
	for _, rec := range records {
		if rec.Status != models.BackupApplying {
			continue
		}
		if _, err := m.Rollback(rec.BackupID); err != nil {
			m.logger.Warn("recovery rollback failed", zap.String("id", rec.BackupID), zap.Error(err))
			continue
		}
		recovered = append(recovered, rec.BackupID)
	}
	return recovered, nil
}

// Get returns the metadata record for id.
func (m *Manager) Get(id string) (models.BackupRecord, error) {
	var rec models.BackupRecord
	data, err := os.ReadFile(filepath.Join(m.dir, id, MetadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return rec, fmt.Errorf("read backup metadata: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parse backup metadata %s: %w", id, err)
	}
	return rec, nil
}

// List returns all readable backup records, oldest first.
func (m *Manager) List() ([]models.BackupRecord, error) {
	ids, err := m.ids()
	if err != nil {
		return nil, err
	}
	records := make([]models.BackupRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := m.Get(id)
		if err != nil {
			m.logger.Debug("skipping unreadable backup", zap.String("id", id), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Cleanup deletes the oldest backups so at most keep remain. keep <= 0 uses
// the configured retention. It returns the number of backups removed.
func (m *Manager) Cleanup(keep int) (int, error) {
	if keep <= 0 {
		keep = m.keep
	}
	ids, err := m.ids()
	if err != nil {
		return 0, err
	}
	if len(ids) <= keep {
		return 0, nil
	}
	removed := 0
	for _, id := range ids[:len(ids)-keep] {
		if err := os.RemoveAll(filepath.Join(m.dir, id)); err != nil {
			return removed, fmt.Errorf("remove backup %s: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

// ids returns backup directory names sorted oldest first.
func (m *Manager) ids() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "correction-") {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Manager) setStatus(id string, status models.BackupStatus) error {
	rec, err := m.Get(id)
	if err != nil {
		return err
	}
	rec.Status = status
	return m.writeRecord(rec)
}

func (m *Manager) writeRecord(rec models.BackupRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup metadata: %w", err)
	}
	path := filepath.Join(m.dir, rec.BackupID, MetadataFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write backup metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace backup metadata: %w", err)
	}
	return nil
}

// snapshotPrefix identifies all snapshots of one live path. The path hash
// keeps files that share a base name apart.
func snapshotPrefix(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return filepath.Base(path) + "." + hex.EncodeToString(sum[:4]) + ".backup."
}

func (m *Manager) snapshotName(path string) string {
	name := snapshotPrefix(path) + m.stamp().Format(stampLayout)
	if m.compress {
		name += zstdExt
	}
	return name
}

// latestSnapshot returns the lexicographically greatest snapshot of path.
func (m *Manager) latestSnapshot(dir, path string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	prefix := snapshotPrefix(path)
	var best string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.TrimSuffix(name, zstdExt) > strings.TrimSuffix(best, zstdExt) {
			best = name
		}
	}
	return best, best != ""
}

func (m *Manager) writeSnapshot(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if !m.compress {
		_, err = io.Copy(out, in)
		return err
	}

	encoder, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := io.Copy(encoder, in); err != nil {
		encoder.Close()
		return fmt.Errorf("compress: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}
	return nil
}

func (m *Manager) restoreSnapshot(snap, path string) error {
	in, err := os.Open(snap)
	if err != nil {
		return err
	}
	defer in.Close()

	var r io.Reader = in
	if strings.HasSuffix(snap, zstdExt) {
		decoder, err := zstd.NewReader(in)
		if err != nil {
			return fmt.Errorf("create zstd decoder: %w", err)
		}
		defer decoder.Close()
		r = decoder
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}
