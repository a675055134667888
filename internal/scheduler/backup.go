package scheduler

import (
	"context"

	"github.com/niq79/trading-bot-sub001/internal/reliability"
	"github.com/rs/zerolog"
)

// BackupJob uploads a snapshot of all databases to object storage
type BackupJob struct {
	service *reliability.BackupService
	log     zerolog.Logger
}

// NewBackupJob creates the scheduled backup job
func NewBackupJob(service *reliability.BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run creates and uploads a backup archive
func (j *BackupJob) Run() error {
	info, err := j.service.RunBackup(context.Background())
	if err != nil {
		return err
	}

	j.log.Info().
		Str("key", info.Key).
		Int64("size_bytes", info.SizeBytes).
		Msg("Backup job completed")
	return nil
}
