package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"folio/internal/database"
)

// MaintenanceJob performs nightly database maintenance: integrity
// checks, WAL checkpoints, disk space monitoring, and the cloud backup
// when one is configured.
type MaintenanceJob struct {
	databases map[string]*database.DB
	backup    *BackupService // nil when backups are disabled
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates a new nightly maintenance job
func NewMaintenanceJob(
	databases map[string]*database.DB,
	backup *BackupService,
	dataDir string,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		backup:    backup,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Run executes the maintenance job
func (j *MaintenanceJob) Run() error {
	j.log.Info().Msg("Starting maintenance")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Step 1: Integrity check for all databases
	for name, db := range j.databases {
		j.log.Debug().Str("database", name).Msg("Running integrity check")

		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Integrity check failed")
			return fmt.Errorf("integrity check failed for %s: %w", name, err)
		}
	}

	// Step 2: WAL checkpoint to prevent bloat
	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical, keep going
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	// Step 3: Disk space check
	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	// Step 4: Log database sizes
	j.logDatabaseStats()

	// Step 5: Cloud backup and rotation
	if j.backup != nil {
		if err := j.backup.CreateAndUploadBackup(ctx); err != nil {
			j.log.Error().Err(err).Msg("Backup failed")
			return fmt.Errorf("backup failed: %w", err)
		}
		if err := j.backup.RotateOldBackups(ctx); err != nil {
			// Rotation failure leaves extra archives, not data loss
			j.log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Msg("Maintenance completed successfully")

	return nil
}

// Name returns the job name for scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// checkDiskSpace verifies sufficient disk space is available
func (j *MaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableBytes := stat.Bavail * uint64(stat.Bsize)
	availableGB := float64(availableBytes) / 1e9

	j.log.Debug().Float64("available_gb", availableGB).Msg("Disk space check")

	if availableGB < 0.5 {
		return fmt.Errorf("only %.2f GB free on data volume", availableGB)
	}

	if availableGB < 5.0 {
		j.log.Warn().
			Float64("available_gb", availableGB).
			Msg("Disk space running low")
	}

	return nil
}

// logDatabaseStats records size metrics for each database
func (j *MaintenanceJob) logDatabaseStats() {
	for name, db := range j.databases {
		stats, err := db.GetStats()
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("Failed to get stats")
			continue
		}

		j.log.Info().
			Str("database", name).
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Msg("Database metrics")
	}
}
