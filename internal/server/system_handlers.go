package server

import (
	"net/http"
	"time"

	"github.com/niq79/trading-bot-sub001/internal/database"
	"github.com/niq79/trading-bot-sub001/internal/reliability"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers provides system monitoring and operations endpoints
type SystemHandlers struct {
	log       zerolog.Logger
	databases []*database.DB
	backups   *reliability.BackupService
	startedAt time.Time
}

// NewSystemHandlers creates the system handlers
func NewSystemHandlers(log zerolog.Logger, databases []*database.DB, backups *reliability.BackupService) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		databases: databases,
		backups:   backups,
		startedAt: time.Now(),
	}
}

// DatabaseStatus describes one database in the status response
type DatabaseStatus struct {
	Name      string  `json:"name"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
	Healthy   bool    `json:"healthy"`
}

// SystemStatusResponse is the response for GET /api/system/status
type SystemStatusResponse struct {
	Status     string           `json:"status"`
	UptimeS    int64            `json:"uptime_s"`
	CPUPercent float64          `json:"cpu_percent"`
	MemPercent float64          `json:"mem_percent"`
	Databases  []DatabaseStatus `json:"databases"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.systemStats()

	status := "healthy"
	statuses := make([]DatabaseStatus, 0, len(h.databases))
	for _, db := range h.databases {
		dbStatus := DatabaseStatus{Name: db.Name()}

		if err := db.HealthCheck(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("database", db.Name()).Msg("Database health check failed")
			status = "degraded"
		} else {
			dbStatus.Healthy = true
		}

		if stats, err := db.GetStats(); err == nil {
			dbStatus.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			dbStatus.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}

		statuses = append(statuses, dbStatus)
	}

	writeJSON(w, http.StatusOK, SystemStatusResponse{
		Status:     status,
		UptimeS:    int64(time.Since(h.startedAt).Seconds()),
		CPUPercent: cpuPct,
		MemPercent: memPct,
		Databases:  statuses,
	})
}

// HandleBackup handles POST /api/system/backup
func (h *SystemHandlers) HandleBackup(w http.ResponseWriter, r *http.Request) {
	if h.backups == nil {
		writeError(w, http.StatusServiceUnavailable, "backups are not configured")
		return
	}

	info, err := h.backups.RunBackup(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Manual backup failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// systemStats returns CPU and RAM usage percentages. The CPU sample
// interval is kept short so the status endpoint stays fast.
func (h *SystemHandlers) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
