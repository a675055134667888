package runs_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) *runs.Repository {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "runs.db"),
		Profile: database.ProfileLedger,
		Name:    "runs",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	return runs.NewRepository(db.Conn(), zerolog.Nop())
}

func sampleRun(runID string, startedAt time.Time) *domain.RunResult {
	return &domain.RunResult{
		RunID:      runID,
		TenantID:   "tenant-1",
		StrategyID: "strat-1",
		State:      domain.RunRecorded,
		Equity:     100000,
		Ranked: []domain.RankedSymbol{
			{Symbol: "AAPL", Side: domain.SideLong, Score: 0.12, Rank: 1},
		},
		Targets: []domain.Target{
			{Symbol: "AAPL", Weight: 0.45, Value: 45000, Source: domain.TargetFromRanking},
		},
		Orders: []domain.Order{
			{Symbol: "AAPL", Side: domain.OrderBuy, Notional: 45000, Reason: "rebalance toward target"},
		},
		SubmittedOrderIDs: []string{"broker-abc"},
		OrderErrors:       []string{"failed to submit buy order for MSFT: 403"},
		StartedAt:         startedAt,
		FinishedAt:        startedAt.Add(3 * time.Second),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	repo := newTestRepo(t)

	started := time.Date(2025, 6, 2, 14, 35, 0, 0, time.UTC)
	require.NoError(t, repo.Save(sampleRun("run-1", started)))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RunRecorded, got.State)
	assert.Equal(t, 100000.0, got.Equity)
	require.Len(t, got.Ranked, 1)
	assert.Equal(t, domain.SideLong, got.Ranked[0].Side)
	require.Len(t, got.Targets, 1)
	assert.Equal(t, domain.TargetFromRanking, got.Targets[0].Source)
	require.Len(t, got.Orders, 1)
	assert.Equal(t, domain.OrderBuy, got.Orders[0].Side)
	assert.Equal(t, []string{"broker-abc"}, got.SubmittedOrderIDs)
	assert.Equal(t, []string{"failed to submit buy order for MSFT: 403"}, got.OrderErrors)
	assert.True(t, got.StartedAt.Equal(started))
	assert.True(t, got.FinishedAt.Equal(started.Add(3*time.Second)))
}

func TestSaveUpsertsStateTransitions(t *testing.T) {
	repo := newTestRepo(t)

	started := time.Now().UTC()
	run := sampleRun("run-1", started)
	run.State = domain.RunFetching
	run.FinishedAt = time.Time{}
	require.NoError(t, repo.Save(run))

	run.State = domain.RunFailed
	run.Err = "broker unreachable"
	run.FinishedAt = started.Add(time.Second)
	require.NoError(t, repo.Save(run))

	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.RunFailed, got.State)
	assert.Equal(t, "broker unreachable", got.Err)

	list, err := repo.List("", "", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1, "upsert should not duplicate rows")
}

func TestGetMissingRun(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListFiltersAndOrders(t *testing.T) {
	repo := newTestRepo(t)

	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-a", "run-b", "run-c"} {
		run := sampleRun(id, base.Add(time.Duration(i)*time.Hour))
		if id == "run-c" {
			run.TenantID = "tenant-2"
			run.StrategyID = "strat-9"
		}
		require.NoError(t, repo.Save(run))
	}

	all, err := repo.List("", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].RunID, "newest first")

	byTenant, err := repo.List("tenant-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, byTenant, 2)

	byStrategy, err := repo.List("", "strat-9", 10)
	require.NoError(t, err)
	require.Len(t, byStrategy, 1)
	assert.Equal(t, "run-c", byStrategy[0].RunID)

	limited, err := repo.List("", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestLatestForStrategy(t *testing.T) {
	repo := newTestRepo(t)

	base := time.Now().UTC()
	require.NoError(t, repo.Save(sampleRun("old", base.Add(-time.Hour))))
	require.NoError(t, repo.Save(sampleRun("new", base)))

	got, err := repo.LatestForStrategy("strat-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "new", got.RunID)

	missing, err := repo.LatestForStrategy("strat-unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordSubmittedOrder(t *testing.T) {
	repo := newTestRepo(t)

	run := sampleRun("run-1", time.Now().UTC())
	require.NoError(t, repo.Save(run))

	order := domain.Order{Symbol: "NVDA", Side: domain.OrderSell, Notional: 1200, Reason: "close position, no target"}
	require.NoError(t, repo.RecordSubmittedOrder("run-1", "tenant-1", order, "broker-xyz"))
}

func TestPruneOlderThan(t *testing.T) {
	repo := newTestRepo(t)

	cutoff := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(sampleRun("ancient", cutoff.AddDate(0, -1, 0))))
	require.NoError(t, repo.Save(sampleRun("recent", cutoff.AddDate(0, 0, 5))))
	require.NoError(t, repo.RecordSubmittedOrder("ancient", "tenant-1",
		domain.Order{Symbol: "AAPL", Side: domain.OrderBuy, Notional: 10}, "b-1"))

	deleted, err := repo.PruneOlderThan(cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err := repo.GetByID("ancient")
	require.NoError(t, err)
	assert.Nil(t, got)

	kept, err := repo.GetByID("recent")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
