package backup

import (
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/ammesonb/mirror-backup/record"
)

// ChecksumFile is the store's file name under the backup directory
const ChecksumFile = "file_checksums.json"

// Store holds the last persisted fingerprint for every path that has ever
// been backed up. Entries for paths no longer in the candidate set are kept
// until overwritten.
type Store struct {
	checksums map[string]string
}

// LoadStore reads the persisted store from the backup directory. A missing
// or unreadable file yields an empty store rather than an error, so the next
// run simply treats everything as changed.
func LoadStore(dir string, log zerolog.Logger) *Store {
	store := &Store{checksums: make(map[string]string)}

	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("Could not read checksum store, starting empty")
		}
		return store
	}

	if err = json.Unmarshal(data, &store.checksums); err != nil {
		log.Warn().Err(err).Msg("Checksum store is corrupt, starting empty")
		store.checksums = make(map[string]string)
	}

	return store
}

// Get returns the stored fingerprint for a path
func (s *Store) Get(path string) (string, bool) {
	sum, ok := s.checksums[path]
	return sum, ok
}

// SetAll records the fingerprints of the given files, leaving entries for
// any other paths untouched
func (s *Store) SetAll(records []record.FileRecord) {
	for _, rec := range records {
		s.checksums[rec.Path] = rec.Fingerprint
	}
}

// Len returns the number of tracked paths
func (s *Store) Len() int {
	return len(s.checksums)
}

// Persist rewrites the store file under the backup directory. Content is
// staged beside the target and renamed into place, so a crash mid-write
// leaves the previous store intact.
func (s *Store) Persist(dir string) error {
	data, err := json.MarshalIndent(s.checksums, "", "  ")
	if err != nil {
		return err
	}

	return writeFileAtomic(filepath.Join(dir, ChecksumFile), data)
}

// writeFileAtomic stages content next to the target path and renames it into
// place
func writeFileAtomic(path string, data []byte) error {
	staged := path + "~"
	if err := os.WriteFile(staged, data, 0644); err != nil {
		return err
	}

	return os.Rename(staged, path)
}
