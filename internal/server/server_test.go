package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/config"
	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/domain"
	"github.com/niq79/trading-bot-sub001/internal/events"
	"github.com/niq79/trading-bot-sub001/internal/modules/ranking"
	"github.com/niq79/trading-bot-sub001/internal/modules/rebalancing"
	"github.com/niq79/trading-bot-sub001/internal/modules/signals"
	"github.com/niq79/trading-bot-sub001/internal/modules/strategy"
	"github.com/niq79/trading-bot-sub001/internal/modules/targets"
	"github.com/niq79/trading-bot-sub001/internal/modules/tenants"
	"github.com/niq79/trading-bot-sub001/internal/orchestrator"
	"github.com/niq79/trading-bot-sub001/internal/runs"
	"github.com/niq79/trading-bot-sub001/internal/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type stubBroker struct{}

func (stubBroker) GetAccount(context.Context) (*domain.Account, error) {
	return &domain.Account{Equity: 10000, BuyingPower: 10000, Currency: "USD"}, nil
}

func (stubBroker) GetPositions(context.Context) ([]domain.CurrentPosition, error) {
	return nil, nil
}

func (stubBroker) SubmitOrder(context.Context, domain.Order) (string, error) {
	return "order-1", nil
}

func (stubBroker) GetClock(context.Context) (*domain.MarketClock, error) {
	return &domain.MarketClock{IsOpen: true}, nil
}

type stubMarketData struct{}

func (stubMarketData) GetBars(context.Context, []string, int) (map[string][]domain.Bar, error) {
	return map[string][]domain.Bar{}, nil
}

type stubSignals struct{}

func (stubSignals) GetReading(_ context.Context, signal string) (*domain.SignalReading, error) {
	return nil, fmt.Errorf("unknown signal %q", signal)
}

type testServer struct {
	ts           *httptest.Server
	bus          *events.Bus
	tenantRepo   *tenants.Repository
	strategyRepo *strategy.Repository
	runRepo      *runs.Repository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	dir := t.TempDir()
	log := zerolog.Nop()

	configDB, err := database.New(database.Config{Path: filepath.Join(dir, "config.db"), Profile: database.ProfileStandard, Name: "config"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = configDB.Close() })
	require.NoError(t, configDB.Migrate())

	runsDB, err := database.New(database.Config{Path: filepath.Join(dir, "runs.db"), Profile: database.ProfileLedger, Name: "runs"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = runsDB.Close() })
	require.NoError(t, runsDB.Migrate())

	cacheDB, err := database.New(database.Config{Path: filepath.Join(dir, "cache.db"), Profile: database.ProfileCache, Name: "cache"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cacheDB.Close() })
	require.NoError(t, cacheDB.Migrate())

	tenantRepo := tenants.NewRepository(configDB.Conn(), log)
	strategyRepo := strategy.NewRepository(configDB.Conn(), log)
	runRepo := runs.NewRepository(runsDB.Conn(), log)
	bus := events.NewBus(log)

	orch := orchestrator.New(
		orchestrator.Config{Workers: 2, RunTimeout: 5 * time.Second},
		tenantRepo,
		strategyRepo,
		runRepo,
		func(domain.Tenant) domain.BrokerClient { return stubBroker{} },
		stubMarketData{},
		stubSignals{},
		ranking.NewService(log),
		signals.NewService(time.Hour, log),
		targets.NewService(log),
		rebalancing.NewService(log),
		bus,
		log,
	)

	srv := server.New(server.Config{
		Log:          log,
		Cfg:          &config.Config{Port: 0},
		ConfigDB:     configDB,
		RunsDB:       runsDB,
		CacheDB:      cacheDB,
		TenantRepo:   tenantRepo,
		StrategyRepo: strategyRepo,
		RunRepo:      runRepo,
		Orchestrator: orch,
		Bus:          bus,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testServer{
		ts:           ts,
		bus:          bus,
		tenantRepo:   tenantRepo,
		strategyRepo: strategyRepo,
		runRepo:      runRepo,
	}
}

func (s *testServer) request(t *testing.T, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.ts.Client().Do(req)
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	return resp, buf.Bytes()
}

func validStrategyBody(name string) map[string]interface{} {
	return map[string]interface{}{
		"name":                  name,
		"metric":                "return",
		"universe":              []string{"AAPL", "MSFT", "NVDA"},
		"lookback_bars":         20,
		"long_count":            2,
		"short_count":           0,
		"max_weight_per_symbol": 0.5,
		"cash_reserve_pct":      0.1,
		"rebalance_fraction":    1.0,
		"dust_floor":            25,
		"enabled":               true,
	}
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/api/health"} {
		resp, body := s.request(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, path)

		var parsed map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &parsed))
		assert.Equal(t, "healthy", parsed["status"])
	}
}

func TestTenantCRUD(t *testing.T) {
	s := newTestServer(t)

	// Create
	resp, body := s.request(t, http.MethodPost, "/api/tenants", map[string]interface{}{
		"name":          "fund-one",
		"broker_key_id": "key-1",
		"broker_secret": "secret-1",
		"paper":         true,
		"enabled":       true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.Tenant
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "fund-one", created.Name)

	// The broker secret must never appear in responses
	assert.NotContains(t, string(body), "secret-1")

	// Create without a name fails
	resp, body = s.request(t, http.MethodPost, "/api/tenants", map[string]interface{}{"paper": true})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	// List
	resp, body = s.request(t, http.MethodGet, "/api/tenants", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.Tenant
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	// Get
	resp, _ = s.request(t, http.MethodGet, "/api/tenants/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.request(t, http.MethodGet, "/api/tenants/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Update without a secret keeps the stored one
	resp, _ = s.request(t, http.MethodPut, "/api/tenants/"+created.ID, map[string]interface{}{
		"name":          "fund-renamed",
		"broker_key_id": "key-2",
		"paper":         false,
		"enabled":       true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored, err := s.tenantRepo.GetByID(created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "fund-renamed", stored.Name)
	assert.Equal(t, "key-2", stored.BrokerKeyID)
	assert.Equal(t, "secret-1", stored.BrokerSecret)
	assert.False(t, stored.Paper)

	resp, _ = s.request(t, http.MethodPut, "/api/tenants/missing", map[string]interface{}{"name": "x"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Delete
	resp, _ = s.request(t, http.MethodDelete, "/api/tenants/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.request(t, http.MethodGet, "/api/tenants/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStrategyEndpoints(t *testing.T) {
	s := newTestServer(t)

	tenant := domain.Tenant{Name: "fund-one", Enabled: true}
	require.NoError(t, s.tenantRepo.Create(&tenant))

	// Create under the tenant
	resp, body := s.request(t, http.MethodPost, "/api/tenants/"+tenant.ID+"/strategies", validStrategyBody("momentum"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created domain.StrategyConfig
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, tenant.ID, created.TenantID)

	// Invalid config is rejected with a JSON error
	invalid := validStrategyBody("broken")
	invalid["long_count"] = 0
	resp, body = s.request(t, http.MethodPost, "/api/tenants/"+tenant.ID+"/strategies", invalid)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "error")

	// List by tenant
	resp, body = s.request(t, http.MethodGet, "/api/tenants/"+tenant.ID+"/strategies", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.StrategyConfig
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)

	// Get by ID
	resp, _ = s.request(t, http.MethodGet, "/api/strategies/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.request(t, http.MethodGet, "/api/strategies/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Update cannot move the strategy to another tenant
	update := validStrategyBody("momentum-v2")
	update["tenant_id"] = "other-tenant"
	resp, body = s.request(t, http.MethodPut, "/api/strategies/"+created.ID, update)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var updated domain.StrategyConfig
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "momentum-v2", updated.Name)
	assert.Equal(t, tenant.ID, updated.TenantID)

	// Delete
	resp, _ = s.request(t, http.MethodDelete, "/api/strategies/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = s.request(t, http.MethodGet, "/api/strategies/"+created.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEndpoints(t *testing.T) {
	s := newTestServer(t)

	older := &domain.RunResult{
		RunID:             "run-old",
		TenantID:          "t1",
		StrategyID:        "s1",
		State:             domain.RunRecorded,
		StartedAt:         time.Now().UTC().Add(-time.Hour),
		FinishedAt:        time.Now().UTC().Add(-time.Hour),
		Ranked:            []domain.RankedSymbol{},
		Targets:           []domain.Target{},
		Orders:            []domain.Order{},
		SubmittedOrderIDs: []string{},
	}
	newer := &domain.RunResult{
		RunID:             "run-new",
		TenantID:          "t1",
		StrategyID:        "s2",
		State:             domain.RunFailed,
		StartedAt:         time.Now().UTC(),
		FinishedAt:        time.Now().UTC(),
		Ranked:            []domain.RankedSymbol{},
		Targets:           []domain.Target{},
		Orders:            []domain.Order{},
		SubmittedOrderIDs: []string{},
	}
	require.NoError(t, s.runRepo.Save(older))
	require.NoError(t, s.runRepo.Save(newer))

	// List newest first, filterable
	resp, body := s.request(t, http.MethodGet, "/api/runs?tenant=t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.RunResult
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "run-new", list[0].RunID)

	resp, body = s.request(t, http.MethodGet, "/api/runs?strategy=s1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list = nil
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "run-old", list[0].RunID)

	resp, _ = s.request(t, http.MethodGet, "/api/runs?limit=bogus", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Get
	resp, body = s.request(t, http.MethodGet, "/api/runs/run-new", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var one domain.RunResult
	require.NoError(t, json.Unmarshal(body, &one))
	assert.Equal(t, domain.RunFailed, one.State)

	resp, _ = s.request(t, http.MethodGet, "/api/runs/missing", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Trigger for an unknown strategy maps to 404
	resp, body = s.request(t, http.MethodPost, "/api/runs/trigger", map[string]interface{}{
		"strategy_id": "missing",
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "not found")

	// Sweep triggers are accepted asynchronously
	resp, body = s.request(t, http.MethodPost, "/api/runs/trigger", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), "accepted")
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.request(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status server.SystemStatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "healthy", status.Status)
	require.Len(t, status.Databases, 3)
	for _, db := range status.Databases {
		assert.True(t, db.Healthy, db.Name)
	}
}

func TestBackupNotConfigured(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.request(t, http.MethodPost, "/api/system/backup", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "not configured")
}

func TestRunsStreamDeliversEvents(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/api/runs/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	received := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			received <- data
		}
	}()

	// Registration races the dial, so emit until the reader sees one
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case data := <-received:
			var event events.Event
			require.NoError(t, json.Unmarshal(data, &event))
			assert.Equal(t, events.RunStateChanged, event.Type)
			return
		case <-ticker.C:
			s.bus.Emit(events.RunStateChanged, "test", &events.RunStateChangedData{RunID: "r1", State: "recorded"})
		case <-ctx.Done():
			t.Fatal("no event received on stream")
		}
	}
}
