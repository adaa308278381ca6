package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// A fresh root reports every candidate as changed, mirrors everything, and
// archives nothing
func TestCreateBackupFirstRun(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"data_core/x.txt": "A",
		"go.mod":          "module sample",
	})

	engine := newTestEngine(t, root)
	res := engine.CreateBackup(context.Background(), true, true, true)

	assert.True(t, res.Success, "First run succeeds")
	assert.Equal(t, 2, res.FilesProcessed, "Every candidate processed")
	assert.Equal(t, 2, res.FilesChanged, "Unseen candidates all changed")
	assert.Empty(t, res.ErrorMessage, "No error message on success")
	assert.Equal(t, filepath.Join(engine.BackupDir(), ActiveDir), res.BackupPath, "Result names the mirror")
	assert.GreaterOrEqual(t, res.TimeTakenMs, int64(0), "Duration reported")

	assert.Equal(t, "A", readFile(t, engine.activeDir(), "data_core/x.txt"), "Mirror holds current content")

	entries, err := os.ReadDir(engine.archiveDir())
	assert.Nil(t, err, "Archive directory exists")
	assert.Empty(t, entries, "Nothing archived on a first run")
}

// A second run over unchanged content does nothing to the archive
func TestCreateBackupIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	engine := newTestEngine(t, root)
	first := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, first.Success, "First run succeeds")

	second := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, second.Success, "Second run succeeds")
	assert.Equal(t, 1, second.FilesProcessed, "Candidate still processed")
	assert.Equal(t, 0, second.FilesChanged, "Nothing changed on an identical rerun")

	entries, err := os.ReadDir(engine.archiveDir())
	assert.Nil(t, err, "Archive directory exists")
	assert.Empty(t, entries, "Archive untouched by a no-change run")
}

// Across three runs the archive always holds exactly the previous version
func TestCreateBackupArchivesPriorVersion(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	engine := newTestEngine(t, root)

	res := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Run 1 succeeds")
	assert.Equal(t, 1, res.FilesChanged, "Run 1 sees a new file")

	writeFiles(t, root, map[string]string{"data_core/x.txt": "B"})

	res = engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Run 2 succeeds")
	assert.Equal(t, 1, res.FilesChanged, "Run 2 sees the edit")
	assert.Equal(t, "A", readFile(t, engine.archiveDir(), "data_core/x.txt"), "Archive holds the pre-edit version")
	assert.Equal(t, "B", readFile(t, engine.activeDir(), "data_core/x.txt"), "Mirror holds the current version")

	res = engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Run 3 succeeds")
	assert.Equal(t, 0, res.FilesChanged, "Run 3 sees no change")
	assert.Equal(t, "A", readFile(t, engine.archiveDir(), "data_core/x.txt"), "Archive untouched by the no-change run")
	assert.Equal(t, "B", readFile(t, engine.activeDir(), "data_core/x.txt"), "Mirror unchanged")
}

// New files are mirrored but never archived, edits are both
func TestCreateBackupNewFileExcludedFromArchive(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	engine := newTestEngine(t, root)
	assert.True(t, engine.CreateBackup(context.Background(), true, true, true).Success, "Seed run succeeds")

	writeFiles(t, root, map[string]string{
		"data_core/x.txt": "B",
		"data_core/y.txt": "Y",
	})

	res := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Second run succeeds")
	assert.Equal(t, 2, res.FilesChanged, "Edit and new file both changed")

	assert.Equal(t, "A", readFile(t, engine.archiveDir(), "data_core/x.txt"), "Edited file archived")
	_, err := os.Stat(filepath.Join(engine.archiveDir(), "data_core", "y.txt"))
	assert.True(t, os.IsNotExist(err), "New file has no archived version")

	assert.Equal(t, "Y", readFile(t, engine.activeDir(), "data_core/y.txt"), "New file mirrored")
}

// After any successful run the store matches the mirror, byte for byte
func TestCreateBackupStoreMirrorConsistency(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"data_core/x.txt":        "one",
		"data_core/nested/y.txt": "two",
		"go.mod":                 "module sample",
	})

	engine := newTestEngine(t, root)
	res := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Run succeeds")

	store := LoadStore(engine.BackupDir(), zerolog.Nop())
	assert.Equal(t, res.FilesProcessed, store.Len(), "Store covers every processed file")

	for _, path := range []string{"data_core/x.txt", "data_core/nested/y.txt", "go.mod"} {
		stored, ok := store.Get(path)
		assert.True(t, ok, "Store has "+path)

		mirrored, _, err := checksum(filepath.Join(engine.activeDir(), filepath.FromSlash(path)))
		assert.Nil(t, err, "Mirror copy of "+path+" readable")
		assert.Equal(t, stored, mirrored, "Stored fingerprint matches the mirror for "+path)
	}
}

// A held lock fails the run cleanly
func TestCreateBackupLockHeld(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	engine := newTestEngine(t, root)

	external := newRunLock(engine.BackupDir())
	assert.Nil(t, external.acquire(), "External lock acquired")
	defer external.release()

	res := engine.CreateBackup(context.Background(), true, true, true)
	assert.False(t, res.Success, "Run fails while the lock is held")
	assert.Contains(t, res.ErrorMessage, "already in progress", "Failure names the cause")
	assert.Equal(t, 0, res.FilesProcessed, "No work performed")
}

// Cancellation yields a failed result, never a panic
func TestCreateBackupCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	engine := newTestEngine(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := engine.CreateBackup(ctx, true, true, true)
	assert.False(t, res.Success, "Cancelled run fails")
	assert.Equal(t, context.Canceled.Error(), res.ErrorMessage, "Failure carries the context error")
}

// Read failures surface in the result with the run marked failed
func TestCreateBackupReadFailure(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	realChecksum := checksum
	checksum = func(path string) (string, os.FileInfo, error) {
		if strings.HasSuffix(path, "x.txt") {
			return "", nil, fmt.Errorf("Disk read failed")
		}
		return realChecksum(path)
	}
	defer func() { checksum = realChecksum }()

	engine := newTestEngine(t, root)
	res := engine.CreateBackup(context.Background(), true, true, true)

	assert.False(t, res.Success, "Read failure fails the run")
	assert.Equal(t, "Disk read failed", res.ErrorMessage, "Failure carries the read error")
}

// A panic below the API surfaces as a failed result
func TestCreateBackupRecoversPanic(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"data_core/x.txt": "A"})

	realChecksum := checksum
	checksum = func(path string) (string, os.FileInfo, error) {
		panic("filesystem on fire")
	}
	defer func() { checksum = realChecksum }()

	engine := newTestEngine(t, root)

	var res BackupResult
	assert.NotPanics(t, func() {
		res = engine.CreateBackup(context.Background(), true, true, true)
	}, "Panic never crosses the API")

	assert.False(t, res.Success, "Panicked run fails")
	assert.Contains(t, res.ErrorMessage, "filesystem on fire", "Failure carries the panic value")
}

// A candidate vanishing mid-run is skipped, not fatal
func TestCreateBackupVanishedCandidate(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"data_core/x.txt":     "A",
		"data_core/ghost.txt": "here for enumeration",
	})

	realChecksum := checksum
	checksum = func(path string) (string, os.FileInfo, error) {
		if strings.HasSuffix(path, "ghost.txt") {
			return "", nil, os.ErrNotExist
		}
		return realChecksum(path)
	}
	defer func() { checksum = realChecksum }()

	engine := newTestEngine(t, root)
	res := engine.CreateBackup(context.Background(), true, true, true)

	assert.True(t, res.Success, "Run succeeds without the vanished file")
	assert.Equal(t, 1, res.FilesProcessed, "Vanished file not counted")

	_, err := os.Stat(filepath.Join(engine.activeDir(), "data_core", "ghost.txt"))
	assert.True(t, os.IsNotExist(err), "Vanished file not mirrored")

	store := LoadStore(engine.BackupDir(), zerolog.Nop())
	_, ok := store.Get("data_core/ghost.txt")
	assert.False(t, ok, "Vanished file not recorded")
}

// Tracking is refreshed after each successful run
func TestCreateBackupTracking(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"data_core/x.txt": "A",
		"data_core/y.txt": "B",
	})

	engine := newTestEngine(t, root)

	before := time.Now().Unix()
	res := engine.CreateBackup(context.Background(), true, true, true)
	assert.True(t, res.Success, "Run succeeds")

	tracking := engine.Tracking()
	assert.Equal(t, 2, tracking.BackupCount, "Count matches tracked paths")
	assert.GreaterOrEqual(t, tracking.LastBackupTimestamp, before, "Timestamp from this run")

	persisted := LoadTracking(engine.BackupDir(), zerolog.Nop())
	assert.Equal(t, tracking, persisted, "Tracking persisted to disk")
}

// Results serialize under their stable field names
func TestBackupResultJSON(t *testing.T) {
	data, err := json.Marshal(BackupResult{
		Success:        true,
		FilesProcessed: 3,
		FilesChanged:   1,
		TimeTakenMs:    42,
		BackupPath:     "/srv/backup_core/active_backup",
	})
	assert.Nil(t, err, "Result marshals")

	parsed := map[string]interface{}{}
	assert.Nil(t, json.Unmarshal(data, &parsed), "Result is valid JSON")
	assert.Equal(t, true, parsed["success"], "Success key")
	assert.Equal(t, float64(3), parsed["files_processed"], "Processed key")
	assert.Equal(t, float64(1), parsed["files_changed"], "Changed key")
	assert.Equal(t, float64(42), parsed["time_taken_ms"], "Duration key")
	assert.Equal(t, "/srv/backup_core/active_backup", parsed["backup_path"], "Path key")
	assert.NotContains(t, parsed, "error_message", "Empty error omitted")
}

// Construction validates the root and lays out the state directory
func TestNewLayout(t *testing.T) {
	root := t.TempDir()

	engine, err := New(root, Options{Logger: zerolog.Nop()})
	assert.Nil(t, err, "No error constructing engine")
	assert.Equal(t, root, engine.Root(), "Project root resolved absolute")
	assert.Equal(t, filepath.Join(root, DefaultBackupDirName), engine.BackupDir(), "Default state directory under the root")

	for _, dir := range []string{ActiveDir, ArchiveDir} {
		stats, statErr := os.Stat(filepath.Join(engine.BackupDir(), dir))
		assert.Nil(t, statErr, dir+" created")
		assert.True(t, stats.IsDir(), dir+" is a directory")
	}

	_, err = New(filepath.Join(root, "missing"), Options{Logger: zerolog.Nop()})
	assert.NotNil(t, err, "Nonexistent root rejected")
}

// A relative backup directory resolves under the root
func TestNewRelativeBackupDir(t *testing.T) {
	root := t.TempDir()

	engine, err := New(root, Options{BackupDir: "state/backups", Logger: zerolog.Nop()})
	assert.Nil(t, err, "No error constructing engine")
	assert.Equal(t, filepath.Join(root, "state", "backups"), engine.BackupDir(), "Relative directory anchored at the root")
}
