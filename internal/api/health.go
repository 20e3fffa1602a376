package api

import (
	"net/http"
	"time"

	"github.com/Ajirohack/echo/internal/ingest"
	"github.com/Ajirohack/echo/internal/mqttclient"
	"github.com/Ajirohack/echo/internal/storage"
)

// HealthResponse reports service status. Status is "healthy" or
// "degraded"; the engine keeps serving either way, since every hard
// dependency lives behind a per-request provider call.
type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	InFlight      int64                 `json:"in_flight"`
	Checks        map[string]string     `json:"checks"`
	Queue         *ingest.QueueStats    `json:"queue,omitempty"`
	Watcher       *ingest.WatcherStatus `json:"watcher,omitempty"`
}

type HealthHandler struct {
	engine    Engine
	mqtt      *mqttclient.Client
	store     storage.AudioStore
	pool      *ingest.WorkerPool
	watcher   *ingest.FileWatcher
	version   string
	startTime time.Time
}

// NewHealthHandler creates the health endpoint handler. Every
// dependency except the engine may be nil; absent ones report as
// not_configured.
func NewHealthHandler(engine Engine, mqtt *mqttclient.Client, store storage.AudioStore, pool *ingest.WorkerPool, watcher *ingest.FileWatcher, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		mqtt:      mqtt,
		store:     store,
		pool:      pool,
		watcher:   watcher,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Storage check
	if h.store != nil {
		checks["storage"] = h.store.Type()
	} else {
		checks["storage"] = "not_configured"
	}

	resp := HealthResponse{
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		InFlight:      h.engine.InFlight(),
		Checks:        checks,
	}

	// Queue check: a full queue means new jobs are being rejected.
	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Queue = &stats
		if capacity := h.pool.QueueCap(); capacity > 0 && stats.Pending >= capacity {
			checks["queue"] = "full"
			degrade()
		} else {
			checks["queue"] = "ok"
		}
	} else {
		checks["queue"] = "not_configured"
	}

	// Watcher check
	if h.watcher != nil {
		ws := h.watcher.Status()
		resp.Watcher = ws
		checks["watcher"] = ws.Status
		if ws.Status == "stopped" {
			degrade()
		}
	} else {
		checks["watcher"] = "not_configured"
	}

	resp.Status = status
	WriteJSON(w, http.StatusOK, resp)
}
