package backup

// BackupResult summarizes one run. A failed run carries the first error
// encountered plus best-effort counters for the work finished before it;
// failures are reported here rather than panicking across the API.
type BackupResult struct {
	Success bool `json:"success"`
	// Candidate files fingerprinted this run
	FilesProcessed int `json:"files_processed"`
	// Subset whose content differed from the stored fingerprint
	FilesChanged int   `json:"files_changed"`
	TimeTakenMs  int64 `json:"time_taken_ms"`
	// Absolute path of the active mirror
	BackupPath   string `json:"backup_path"`
	ErrorMessage string `json:"error_message,omitempty"`
}
