package backup

import (
	"io/fs"
	"os"
	"path/filepath"
)

// The candidate set is fixed: these core directories, the project manifest
// files, and optionally the config and log trees. Nothing else under the
// root is ever considered.
var (
	coreDirs      = []string{"data_core", "model_core", "session_core", "support_core", "utils_core"}
	manifestFiles = []string{"main.go", "go.mod", "README.md"}
)

const (
	configDirName = "config"
	logDirName    = "log"
)

// Path components that are never backed up. A matching directory is pruned
// with its whole subtree; a file with a matching name (a submodule leaves
// .git as a plain file) is skipped on its own.
var skipNames = map[string]bool{
	".git":          true,
	"__pycache__":   true,
	".pytest_cache": true,
	"node_modules":  true,
}

// enumerate builds the candidate file set for one run. Callers pass
// includeData as part of the contract, but the core directories are always
// walked regardless of its value. Paths come back relative to the project
// root, slash-separated, in no guaranteed order; missing directories are
// skipped silently.
func (e *Engine) enumerate(includeData, includeLogs, includeConfig bool) ([]string, error) {
	candidates := make([]string, 0)

	for _, dir := range coreDirs {
		found, err := e.walkDir(filepath.Join(e.root, dir))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	for _, name := range manifestFiles {
		stats, err := os.Stat(filepath.Join(e.root, name))
		if err == nil && stats.Mode().IsRegular() {
			candidates = append(candidates, name)
		}
	}

	if includeConfig {
		found, err := e.walkDir(filepath.Join(e.root, configDirName))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	if includeLogs {
		found, err := e.walkDir(filepath.Join(e.root, logDirName))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, found...)
	}

	return candidates, nil
}

// walkDir collects the regular files under dir, pruning the skip set and the
// engine's own state directory. A directory that does not exist is not an
// error, it contributes nothing.
func (e *Engine) walkDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			// The root may legitimately be absent, and files can vanish
			// mid-walk; both just reduce the candidate set
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}

		if entry.IsDir() {
			if skipNames[entry.Name()] || path == e.backupDir {
				return fs.SkipDir
			}
			return nil
		}

		if skipNames[entry.Name()] || !entry.Type().IsRegular() {
			return nil
		}

		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}
