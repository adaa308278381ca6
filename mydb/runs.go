package mydb

import (
	"database/sql"

	"github.com/ammesonb/mirror-backup/record"
)

// AddRun inserts a completed run into the catalog
func AddRun(db *sql.DB, run record.RunRecord) error {
	_, err := db.Exec(`
    INSERT INTO runs (
      runID,
      startedAt,
      durationMs,
      filesProcessed,
      filesChanged,
      success,
      errorMessage
    )
    VALUES ($1, $2, $3, $4, $5, $6, $7)
  `,
		run.RunID,
		run.StartedAt,
		run.DurationMs,
		run.FilesProcessed,
		run.FilesChanged,
		run.Success,
		run.ErrorMessage,
	)

	return err
}

// GetRuns returns up to limit of the most recent runs, newest first
func GetRuns(db *sql.DB, limit int) []*record.RunRecord {
	rows, err := db.Query(`
    SELECT runID, startedAt, durationMs, filesProcessed, filesChanged, success, errorMessage
    FROM runs
    ORDER BY startedAt DESC, runID
    LIMIT $1
  `, limit)
	if err != nil {
		panic(err)
	}
	defer rows.Close()

	var runs []*record.RunRecord

	for rows.Next() {
		var (
			runID          string
			startedAt      int64
			durationMs     int64
			filesProcessed int
			filesChanged   int
			success        bool
			errorMessage   string
		)
		err := rows.Scan(&runID, &startedAt, &durationMs, &filesProcessed, &filesChanged, &success, &errorMessage)
		if err != nil {
			panic(err)
		}

		runs = append(runs, &record.RunRecord{
			RunID:          runID,
			StartedAt:      startedAt,
			DurationMs:     durationMs,
			FilesProcessed: filesProcessed,
			FilesChanged:   filesChanged,
			Success:        success,
			ErrorMessage:   errorMessage,
		})
	}

	return runs
}
