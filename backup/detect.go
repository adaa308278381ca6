package backup

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/ammesonb/mirror-backup/record"
)

// detect fingerprints every candidate through the worker pool and splits out
// the paths whose content differs from the stored fingerprint. A candidate
// that vanishes before it can be read is dropped from the run with a
// warning; any other read failure aborts.
func (e *Engine) detect(ctx context.Context, candidates []string) ([]record.FileRecord, []string, error) {
	records, err := e.fingerprintAll(ctx, candidates)
	if err != nil {
		return nil, nil, err
	}

	changed := make([]string, 0)
	for _, rec := range records {
		stored, ok := e.store.Get(rec.Path)
		if !ok || stored != rec.Fingerprint {
			changed = append(changed, rec.Path)
		}
	}

	return records, changed, nil
}

// fingerprintAll fans the candidate set out over the worker pool and
// collects the results, sorted by path for deterministic downstream order
func (e *Engine) fingerprintAll(ctx context.Context, candidates []string) ([]record.FileRecord, error) {
	// Full-size buffers so neither producer nor workers can block on a
	// cancelled run
	jobs := make(chan fingerprintJob, len(candidates))
	results := make(chan fingerprintResult, len(candidates))

	wg := sync.WaitGroup{}
	for workerID := 0; workerID < e.workers; workerID++ {
		wg.Add(1)
		startWorker(ctx, &workerContext{
			workerID: workerID,
			root:     e.root,
			log:      e.log,
			jobs:     jobs,
			results:  results,
		}, &wg)
	}

	for _, path := range candidates {
		jobs <- fingerprintJob{Path: path}
	}
	close(jobs)

	records := make([]record.FileRecord, 0, len(candidates))
	var firstErr error

	for received := 0; received < len(candidates); received++ {
		select {
		case res := <-results:
			switch {
			case res.Err == nil:
				records = append(records, res.Record)
			case os.IsNotExist(res.Err):
				e.log.Warn().Str("path", res.Record.Path).Msg("File vanished before fingerprinting, skipping")
			case firstErr == nil:
				firstErr = res.Err
			}
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})

	return records, nil
}
