package backup

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// TrackingFile is the tracking record's file name under the backup directory
const TrackingFile = "backup_tracking.json"

// Tracking records when the last run finished and how many paths the store
// held at that point. It is written after the checksum store, so a tracking
// file always describes a fully persisted run.
type Tracking struct {
	LastBackupTimestamp int64 `json:"last_backup_timestamp"`
	BackupCount         int   `json:"backup_count"`
}

// LoadTracking reads the persisted record from the backup directory,
// substituting zero values when the file is missing or unreadable
func LoadTracking(dir string, log zerolog.Logger) Tracking {
	data, err := os.ReadFile(filepath.Join(dir, TrackingFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Could not read tracking record, using defaults")
		}
		return Tracking{}
	}

	var tracking Tracking
	if err = json.Unmarshal(data, &tracking); err != nil {
		log.Warn().Err(err).Msg("Tracking record is corrupt, using defaults")
		return Tracking{}
	}

	return tracking
}

// Persist overwrites the tracking file with the current values
func (t Tracking) Persist(dir string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(dir, TrackingFile), data)
}
