package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Directory names under the backup directory
const (
	// ActiveDir mirrors the latest backed-up state of every candidate
	ActiveDir = "active_backup"
	// ArchiveDir holds the pre-change content of the paths that changed in
	// the most recent changing run, and nothing older
	ArchiveDir = "archive_backup"
)

// Staging and handoff names used while a rotation is in flight
const (
	archiveStaging = "archive_backup.tmp"
	archiveRetired = "archive_backup.old"
)

// rotateArchive discards the previous snapshot and rebuilds it with the
// mirrored pre-change content of every changed path. The new snapshot is
// built in a staging directory and swapped in afterwards, so an interrupted
// rotation never leaves a half-built tree in place of the previous one.
func (e *Engine) rotateArchive(ctx context.Context, changed []string) error {
	staging := filepath.Join(e.backupDir, archiveStaging)
	if err := os.RemoveAll(staging); err != nil {
		return err
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return err
	}

	for _, path := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.underRoot(path) {
			e.log.Warn().Str("path", path).Msg("Path escapes the project root, not archiving")
			continue
		}

		mirrored := filepath.Join(e.activeDir(), filepath.FromSlash(path))
		if _, err := os.Stat(mirrored); os.IsNotExist(err) {
			// First appearance of this path, there is no prior version to keep
			continue
		} else if err != nil {
			return err
		}

		if err := copyFile(mirrored, filepath.Join(staging, filepath.FromSlash(path))); err != nil {
			return fmt.Errorf("Failed to archive %s: %v", path, err)
		}
	}

	return e.swapArchive(staging)
}

// swapArchive retires the current snapshot and moves the staged one into
// place. Renames keep the window where no snapshot exists to a single step.
func (e *Engine) swapArchive(staging string) error {
	current := filepath.Join(e.backupDir, ArchiveDir)
	retired := filepath.Join(e.backupDir, archiveRetired)

	if err := os.RemoveAll(retired); err != nil {
		return err
	}

	if _, err := os.Stat(current); err == nil {
		if err = os.Rename(current, retired); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.Rename(staging, current); err != nil {
		return err
	}

	return os.RemoveAll(retired)
}

// clearStaleRotation cleans up after a rotation that died mid-swap. A
// retired snapshot stranded without a successor is restored rather than
// dropped, everything else goes.
func (e *Engine) clearStaleRotation() error {
	current := filepath.Join(e.backupDir, ArchiveDir)
	retired := filepath.Join(e.backupDir, archiveRetired)

	if _, err := os.Stat(current); os.IsNotExist(err) {
		if _, retiredErr := os.Stat(retired); retiredErr == nil {
			if renameErr := os.Rename(retired, current); renameErr != nil {
				return renameErr
			}
		}
	}

	if err := os.RemoveAll(retired); err != nil {
		return err
	}

	return os.RemoveAll(filepath.Join(e.backupDir, archiveStaging))
}
