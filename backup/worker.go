package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ammesonb/mirror-backup/record"
)

// fingerprintJob names one candidate file for a worker to read
type fingerprintJob struct {
	// Path relative to the project root, slash-separated
	Path string
}

// fingerprintResult reports one finished candidate
type fingerprintResult struct {
	Record record.FileRecord
	// Set when the file could not be read
	Err error
}

// workerContext contains needed operational data for a fingerprint worker
type workerContext struct {
	workerID int
	// Absolute project root the job paths are relative to
	root string
	log  zerolog.Logger

	jobs    <-chan fingerprintJob
	results chan<- fingerprintResult
}

// startWorker kicks off a new fingerprint worker
func startWorker(ctx context.Context, wc *workerContext, wg *sync.WaitGroup) {
	go func() {
		defer wg.Done()
		listen(ctx, wc)
	}()
}

// listen handles incoming jobs until the channel closes or the run is
// cancelled
var listen = func(ctx context.Context, wc *workerContext) {
	for {
		select {
		case job, ok := <-wc.jobs:
			if !ok {
				return
			}
			runJob(job, wc)
		case <-ctx.Done():
			return
		}
	}
}

// runJob fingerprints a single candidate, reporting a failure instead of
// crashing the worker if something panics mid-read
var runJob = func(job fingerprintJob, wc *workerContext) {
	defer func() {
		if r := recover(); r != nil {
			wc.log.Warn().Int("worker", wc.workerID).Str("path", job.Path).Msgf("Recovered from panic: %v", r)
			wc.results <- fingerprintResult{
				Record: record.FileRecord{Path: job.Path},
				Err:    fmt.Errorf("Panic while fingerprinting %s: %v", job.Path, r),
			}
		}
	}()

	wc.log.Debug().Int("worker", wc.workerID).Str("path", job.Path).Msg("Calculating hash")

	sum, stats, err := checksum(filepath.Join(wc.root, filepath.FromSlash(job.Path)))
	if err != nil {
		wc.results <- fingerprintResult{Record: record.FileRecord{Path: job.Path}, Err: err}
		return
	}

	wc.results <- fingerprintResult{Record: record.FileRecord{
		Path:        job.Path,
		Fingerprint: sum,
		Size:        stats.Size(),
		Modified:    stats.ModTime().Unix(),
	}}
}
