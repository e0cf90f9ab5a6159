package models

import "time"

// BackupStatus is the lifecycle state of a BackupRecord.
type BackupStatus string

const (
	// BackupCreated means snapshots exist but no mutation has started.
	BackupCreated BackupStatus = "created"
	// BackupApplying is written before a correction mutates files and
	// replaced once it succeeds; a record left in this state after a crash
	// is rolled back by the startup recovery scan.
	BackupApplying   BackupStatus = "applying"
	BackupApplied    BackupStatus = "applied"
	BackupRolledBack BackupStatus = "rolled_back"
)

// BackupRecord is the metadata written next to a backup's file snapshots.
type BackupRecord struct {
	BackupID     string               `json:"backupId"`
	Timestamp    time.Time            `json:"timestamp"`
	Correction   CorrectionDescriptor `json:"correctionData"`
	Status       BackupStatus         `json:"status"`
	Snapshots    map[string]string    `json:"snapshots,omitempty"` // live path -> snapshot file name
	RollbackTime *time.Time           `json:"rollbackTime,omitempty"`
}
