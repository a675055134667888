package scheduler

import (
	"time"

	"github.com/niq79/trading-bot-sub001/internal/clientdata"
	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/rs/zerolog"
)

// CacheCleanupJob removes expired rows from the client data cache and
// checkpoints the cache database's WAL
type CacheCleanupJob struct {
	cacheRepo *clientdata.Repository
	cacheDB   *database.DB
	log       zerolog.Logger
}

// NewCacheCleanupJob creates the cache cleanup job
func NewCacheCleanupJob(cacheRepo *clientdata.Repository, cacheDB *database.DB, log zerolog.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		cacheRepo: cacheRepo,
		cacheDB:   cacheDB,
		log:       log.With().Str("job", "cache_cleanup").Logger(),
	}
}

// Name returns the job name
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Run deletes expired cache entries
func (j *CacheCleanupJob) Run() error {
	results, err := j.cacheRepo.DeleteAllExpired()
	if err != nil {
		return err
	}

	total := int64(0)
	for _, count := range results {
		total += count
	}
	if total > 0 {
		j.log.Info().Int64("deleted", total).Msg("Expired cache entries removed")
	}

	if j.cacheDB != nil {
		if err := j.cacheDB.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Msg("WAL checkpoint failed")
		}
	}
	return nil
}

// RunsPruneJob deletes run history older than the retention window
type RunsPruneJob struct {
	runRepo   *runs.Repository
	retention time.Duration
	log       zerolog.Logger
}

// NewRunsPruneJob creates the run history prune job
func NewRunsPruneJob(runRepo *runs.Repository, retention time.Duration, log zerolog.Logger) *RunsPruneJob {
	return &RunsPruneJob{
		runRepo:   runRepo,
		retention: retention,
		log:       log.With().Str("job", "runs_prune").Logger(),
	}
}

// Name returns the job name
func (j *RunsPruneJob) Name() string {
	return "runs_prune"
}

// Run prunes old runs
func (j *RunsPruneJob) Run() error {
	if j.retention <= 0 {
		j.log.Debug().Msg("Retention disabled, keeping all runs")
		return nil
	}

	cutoff := time.Now().UTC().Add(-j.retention)
	deleted, err := j.runRepo.PruneOlderThan(cutoff)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Old runs pruned")
	}
	return nil
}
