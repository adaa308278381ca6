package record

// FileRecord contains per-run metadata for a single candidate file
type FileRecord struct {
	// The path relative to the project root, slash-separated
	Path string
	// 64-character lowercase hex digest of the full file content
	Fingerprint string
	// Size in bytes when the fingerprint was taken
	Size int64
	// Modification time as epoch seconds
	Modified int64
}

// RunRecord summarizes one completed backup run for the catalog
type RunRecord struct {
	RunID string
	// When the run started, epoch seconds
	StartedAt  int64
	DurationMs int64
	// Candidate files fingerprinted this run
	FilesProcessed int
	// Subset whose content differed from the stored fingerprint
	FilesChanged int
	Success      bool
	// Empty unless the run failed
	ErrorMessage string
}
