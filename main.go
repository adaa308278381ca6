package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ammesonb/mirror-backup/backup"
	"github.com/ammesonb/mirror-backup/config"
	"github.com/ammesonb/mirror-backup/device"
	"github.com/ammesonb/mirror-backup/mydb"
	"github.com/ammesonb/mirror-backup/record"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.String("root", "", "Project root to back up")
	flag.Bool("data", true, "Include the core data directories")
	flag.Bool("logs", true, "Include the log directory")
	flag.Bool("config-dir", true, "Include the config directory")
	flag.Int("workers", 0, "Fingerprint workers, 0 for one per CPU")
	jsonOut := flag.Bool("json", false, "Print the run result as JSON")
	history := flag.Int("history", 0, "Show the N most recent runs and exit")
	status := flag.Bool("status", false, "Show tracking and device status and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(cfg)

	logger := newLogger(cfg.Logging)

	engine, err := backup.New(cfg.Root, backup.Options{
		BackupDir: cfg.BackupDir,
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Could not initialize backup engine")
	}

	catalogPath := cfg.Catalog
	if !filepath.IsAbs(catalogPath) {
		catalogPath = filepath.Join(engine.BackupDir(), catalogPath)
	}
	db := mydb.OpenDB(catalogPath)
	defer db.Close()

	if *history > 0 {
		printHistory(db, *history)
		return
	}
	if *status {
		printStatus(engine)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now().Unix()
	result := engine.CreateBackup(ctx, cfg.Include.Data, cfg.Include.Logs, cfg.Include.Config)

	err = mydb.AddRun(db, record.RunRecord{
		RunID:          uuid.NewString(),
		StartedAt:      started,
		DurationMs:     result.TimeTakenMs,
		FilesProcessed: result.FilesProcessed,
		FilesChanged:   result.FilesChanged,
		Success:        result.Success,
		ErrorMessage:   result.ErrorMessage,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Could not record run in catalog")
	}

	printResult(result, *jsonOut)
	if !result.Success {
		os.Exit(1)
	}
}

// applyFlags lets flags given on the command line win over file and
// environment settings
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "root":
			cfg.Root = f.Value.String()
		case "data":
			cfg.Include.Data = f.Value.String() == "true"
		case "logs":
			cfg.Include.Logs = f.Value.String() == "true"
		case "config-dir":
			cfg.Include.Config = f.Value.String() == "true"
		case "workers":
			if workers, err := strconv.Atoi(f.Value.String()); err == nil {
				cfg.Workers = workers
			}
		}
	})
}

// newLogger builds the process logger, console output by default or JSON
// for machine consumption
func newLogger(cfg config.Logging) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	return logger.Level(level).With().Timestamp().Logger()
}

func printResult(result backup.BackupResult, asJSON bool) {
	if asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err == nil {
			fmt.Println(string(out))
		}
		return
	}

	if result.Success {
		fmt.Printf("Backed up %d files (%d changed) in %dms to %s\n",
			result.FilesProcessed, result.FilesChanged, result.TimeTakenMs, result.BackupPath)
	} else {
		fmt.Printf("Backup failed: %s\n", result.ErrorMessage)
	}
}

func printHistory(db *sql.DB, limit int) {
	runs := mydb.GetRuns(db, limit)
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}

	for _, run := range runs {
		outcome := "ok"
		if !run.Success {
			outcome = "failed: " + run.ErrorMessage
		}
		fmt.Printf("%s  %s  processed=%d changed=%d in %dms  %s\n",
			shortID(run.RunID),
			time.Unix(run.StartedAt, 0).Format("2006-01-02 15:04:05"),
			run.FilesProcessed, run.FilesChanged, run.DurationMs, outcome)
	}
}

// shortID trims a run ID to its leading group for display. Rows written by
// hand or by another tool may carry IDs shorter than a UUID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func printStatus(engine *backup.Engine) {
	fmt.Printf("Project root: %s\n", engine.Root())

	tracking := engine.Tracking()
	if tracking.LastBackupTimestamp == 0 {
		fmt.Println("No backups recorded yet")
	} else {
		fmt.Printf("Last backup: %s (%d paths tracked)\n",
			time.Unix(tracking.LastBackupTimestamp, 0).Format(time.RFC1123),
			tracking.BackupCount)
	}

	dev, err := device.ForPath(engine.BackupDir())
	if err != nil {
		fmt.Printf("Backup device: unavailable (%v)\n", err)
		return
	}
	fmt.Printf("Backup device: %s (serial %s), %s free of %s\n",
		dev.MountPoint, dev.DeviceSerial,
		humanize.IBytes(dev.AvailableSpace), humanize.IBytes(dev.TotalSpace))
}
