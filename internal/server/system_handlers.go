package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"folio/internal/database"
	"folio/internal/modules/market"
)

// SystemHandlers serves process and database health information
type SystemHandlers struct {
	log       zerolog.Logger
	databases map[string]*database.DB
	market    *market.Service
	startedAt time.Time
}

// NewSystemHandlers creates new system handlers
func NewSystemHandlers(log zerolog.Logger, databases map[string]*database.DB, market *market.Service) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("handler", "system").Logger(),
		databases: databases,
		market:    market,
		startedAt: time.Now(),
	}
}

type systemStatus struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	CPUPercent    float64            `json:"cpu_percent"`
	Memory        memoryStatus       `json:"memory"`
	Provider      providerStatus     `json:"provider"`
	Databases     map[string]dbBrief `json:"databases"`
}

type memoryStatus struct {
	TotalMB     uint64  `json:"total_mb"`
	UsedMB      uint64  `json:"used_mb"`
	UsedPercent float64 `json:"used_percent"`
}

type providerStatus struct {
	RemainingRequests int    `json:"remaining_requests"`
	CircuitState      string `json:"circuit_state"`
	MarketOpen        bool   `json:"market_open"`
}

type dbBrief struct {
	SizeBytes    int64 `json:"size_bytes"`
	WALSizeBytes int64 `json:"wal_size_bytes"`
}

// HandleSystemStatus returns process, provider, and database health
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := systemStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		Databases:     make(map[string]dbBrief),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		status.CPUPercent = cpuPercent[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		status.Memory = memoryStatus{
			TotalMB:     memStat.Total / 1024 / 1024,
			UsedMB:      memStat.Used / 1024 / 1024,
			UsedPercent: memStat.UsedPercent,
		}
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	status.Provider = providerStatus{
		RemainingRequests: h.market.RemainingRequests(),
		CircuitState:      string(h.market.BreakerState()),
		MarketOpen:        h.market.MarketStatus().Open,
	}

	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			continue
		}
		status.Databases[name] = dbBrief{
			SizeBytes:    stats.SizeBytes,
			WALSizeBytes: stats.WALSizeBytes,
		}
	}

	h.writeJSON(w, status)
}

// HandleDatabaseStats returns detailed statistics for each database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	result := make(map[string]*database.Stats, len(h.databases))
	for name, db := range h.databases {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
			continue
		}
		result[name] = stats
	}

	h.writeJSON(w, result)
}

func (h *SystemHandlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
