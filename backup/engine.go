// Package backup implements an incremental, content-addressed backup engine.
// Each run fingerprints a fixed candidate set under a project root, archives
// the previous version of anything that changed, refreshes a full mirror of
// the latest state, and persists the checksum and tracking metadata the next
// run compares against.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ammesonb/mirror-backup/device"
	"github.com/ammesonb/mirror-backup/record"
)

// DefaultBackupDirName anchors the engine state under the project root when
// no explicit backup directory is configured
const DefaultBackupDirName = "backup_core"

// Options tune a new engine; zero values fall back to defaults
type Options struct {
	// BackupDir holds all engine state. Relative paths resolve under the
	// project root; empty means <root>/backup_core.
	BackupDir string
	// Workers sizes the fingerprint pool, zero means one per CPU
	Workers int
	Logger  zerolog.Logger
}

// Engine owns the checksum store and tracking record for one backup
// directory. Construct one per project root; concurrent runs against the
// same directory are serialized by an advisory lock at run time.
type Engine struct {
	root      string
	backupDir string

	store    *Store
	tracking Tracking
	lock     *runLock

	workers int
	log     zerolog.Logger
}

// New prepares the backup directory (mirror and archive trees, leftovers
// from an interrupted rotation) and loads the persisted store and tracking
// state for the given project root.
func New(root string, opts Options) (*Engine, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("Cannot back up %s: %v", absRoot, err)
	}

	backupDir := opts.BackupDir
	if backupDir == "" {
		backupDir = filepath.Join(absRoot, DefaultBackupDirName)
	} else if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(absRoot, backupDir)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	engine := &Engine{
		root:      absRoot,
		backupDir: filepath.Clean(backupDir),
		workers:   workers,
		log:       opts.Logger,
	}
	engine.lock = newRunLock(engine.backupDir)

	if err = os.MkdirAll(engine.backupDir, 0755); err != nil {
		return nil, err
	}
	if err = engine.clearStaleRotation(); err != nil {
		return nil, err
	}
	if err = os.MkdirAll(engine.activeDir(), 0755); err != nil {
		return nil, err
	}
	if err = os.MkdirAll(engine.archiveDir(), 0755); err != nil {
		return nil, err
	}

	engine.store = LoadStore(engine.backupDir, engine.log)
	engine.tracking = LoadTracking(engine.backupDir, engine.log)

	return engine, nil
}

// Root returns the absolute project root
func (e *Engine) Root() string {
	return e.root
}

// BackupDir returns the absolute directory holding all engine state
func (e *Engine) BackupDir() string {
	return e.backupDir
}

// Tracking returns the most recently loaded or persisted tracking record
func (e *Engine) Tracking() Tracking {
	return e.tracking
}

func (e *Engine) activeDir() string {
	return filepath.Join(e.backupDir, ActiveDir)
}

func (e *Engine) archiveDir() string {
	return filepath.Join(e.backupDir, ArchiveDir)
}

// CreateBackup runs the full pipeline once: enumerate candidates,
// fingerprint them, rotate the archive if anything changed, refresh the
// mirror, then persist checksums and tracking. Failures are captured in the
// result instead of propagating; the engine never panics across this
// boundary.
func (e *Engine) CreateBackup(ctx context.Context, includeData, includeLogs, includeConfig bool) (res BackupResult) {
	start := time.Now()
	res = BackupResult{BackupPath: e.activeDir()}

	defer func() {
		res.TimeTakenMs = time.Since(start).Milliseconds()
		if r := recover(); r != nil {
			e.log.Error().Msgf("Recovered from panic during backup: %v", r)
			res.Success = false
			res.ErrorMessage = fmt.Sprintf("Panic during backup: %v", r)
		}
	}()

	fail := func(err error) BackupResult {
		e.log.Error().Err(err).Msg("Backup failed")
		res.ErrorMessage = err.Error()
		return res
	}

	if err := e.lock.acquire(); err != nil {
		return fail(err)
	}
	defer e.lock.release()

	candidates, err := e.enumerate(includeData, includeLogs, includeConfig)
	if err != nil {
		return fail(err)
	}
	e.log.Debug().Int("candidates", len(candidates)).Msg("Enumerated backup candidates")

	records, changed, err := e.detect(ctx, candidates)
	if err != nil {
		return fail(err)
	}
	res.FilesProcessed = len(records)
	res.FilesChanged = len(changed)

	e.preflight(records)

	if len(changed) > 0 {
		e.log.Info().Int("changed", len(changed)).Msg("Rotating archive")
		if err = e.rotateArchive(ctx, changed); err != nil {
			return fail(err)
		}
	}

	if err = e.updateMirror(ctx, records); err != nil {
		return fail(err)
	}

	e.store.SetAll(records)
	if err = e.store.Persist(e.backupDir); err != nil {
		return fail(err)
	}

	e.tracking = Tracking{
		LastBackupTimestamp: time.Now().Unix(),
		BackupCount:         e.store.Len(),
	}
	if err = e.tracking.Persist(e.backupDir); err != nil {
		return fail(err)
	}

	res.Success = true
	e.log.Info().
		Int("processed", res.FilesProcessed).
		Int("changed", res.FilesChanged).
		Msg("Backup complete")

	return res
}

// preflight warns when the device backing the backup directory has less free
// space than the candidate bytes. Advisory only, the run proceeds either way.
func (e *Engine) preflight(records []record.FileRecord) {
	var total uint64
	for _, rec := range records {
		total += uint64(rec.Size)
	}

	dev, err := device.ForPath(e.backupDir)
	if err != nil {
		e.log.Debug().Err(err).Msg("Could not inspect backup device")
		return
	}

	if dev.AvailableSpace < total {
		e.log.Warn().
			Str("mount", dev.MountPoint).
			Uint64("free", dev.AvailableSpace).
			Uint64("needed", total).
			Msg("Backup device may not have enough free space for this run")
	}
}

// underRoot reports whether a relative candidate path resolves inside the
// project root once cleaned. Anything that climbs out is skipped by the
// copy phases.
func (e *Engine) underRoot(path string) bool {
	joined := filepath.Join(e.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(e.root, joined)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
