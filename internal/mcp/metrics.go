package mcp

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics is the complete metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	Engine        EngineMetrics    `json:"engine"`
	WebSocket     WSMetrics        `json:"websocket"`
	MQTT          *MQTTMetrics     `json:"mqtt,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// EngineMetrics contains protocol engine counters.
type EngineMetrics struct {
	Connected      bool   `json:"connected"`
	CommandsSent   uint64 `json:"commands_sent"`
	RepliesMatched uint64 `json:"replies_matched"`
	Timeouts       uint64 `json:"timeouts"`
	Reconnects     uint64 `json:"reconnects"`
	EventsReceived uint64 `json:"events_received"`
	UnknownLines   uint64 `json:"unknown_lines"`
	ErrorsTotal    uint64 `json:"errors_total"`
	EventOverruns  uint64 `json:"event_overruns"`
	Subscribers    int    `json:"subscribers"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseMetrics contains device catalogue statistics.
type DatabaseMetrics struct {
	Entities int `json:"entities"`
}

// handleMetrics returns runtime, engine, hub and catalogue metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	engineStats := s.engine.Stats()

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Engine: EngineMetrics{
			Connected:      engineStats.Connected,
			CommandsSent:   engineStats.CommandsSent,
			RepliesMatched: engineStats.RepliesMatched,
			Timeouts:       engineStats.Timeouts,
			Reconnects:     engineStats.Reconnects,
			EventsReceived: engineStats.EventsReceived,
			UnknownLines:   engineStats.UnknownLines,
			ErrorsTotal:    engineStats.ErrorsTotal,
			EventOverruns:  engineStats.EventOverruns,
			Subscribers:    engineStats.Subscribers,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.database != nil {
		metrics.Database = &DatabaseMetrics{Entities: s.database.Count()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
