package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ammesonb/mirror-backup/record"
)

// updateMirror copies the current content of every candidate into the
// active mirror, overwriting earlier versions. This runs after rotation so
// the archive captured the pre-update bytes.
func (e *Engine) updateMirror(ctx context.Context, records []record.FileRecord) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.underRoot(rec.Path) {
			e.log.Warn().Str("path", rec.Path).Msg("Path escapes the project root, not mirroring")
			continue
		}

		source := filepath.Join(e.root, filepath.FromSlash(rec.Path))
		target := filepath.Join(e.activeDir(), filepath.FromSlash(rec.Path))
		if err := copyFile(source, target); err != nil {
			return fmt.Errorf("Failed to mirror %s: %v", rec.Path, err)
		}
	}

	return nil
}

// copyFile copies source to target, creating parent directories as needed
// and carrying the source's permission bits over
func copyFile(source, target string) error {
	in, err := osOpen(source)
	if err != nil {
		return err
	}
	defer in.Close()

	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}

	stats, err := in.Stat()
	if err != nil {
		return err
	}

	return os.Chmod(target, stats.Mode())
}
