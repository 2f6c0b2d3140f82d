package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/whisper-worker/internal/intake"
	"github.com/snarg/whisper-worker/internal/jobs"
)

// Health dependencies; any may be nil when the feature is not configured.
type (
	MQTTStatus          interface{ IsConnected() bool }
	WatcherStatusSource interface{ Status() intake.WatcherStatus }
	TranscoderStatus    interface{ Available() bool }
	QueueStatsSource    interface{ Stats() jobs.QueueStats }
)

type HealthResponse struct {
	Status        string                `json:"status"`
	Version       string                `json:"version"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Checks        map[string]string     `json:"checks"`
	Queue         *jobs.QueueStats      `json:"queue,omitempty"`
	Watcher       *intake.WatcherStatus `json:"watcher,omitempty"`
}

type HealthHandler struct {
	queue     QueueStatsSource
	ffmpeg    TranscoderStatus
	mqtt      MQTTStatus
	watcher   WatcherStatusSource
	version   string
	startTime time.Time
}

type HealthOptions struct {
	Queue     QueueStatsSource
	FFmpeg    TranscoderStatus
	MQTT      MQTTStatus
	Watcher   WatcherStatusSource
	Version   string
	StartTime time.Time
}

func NewHealthHandler(opts HealthOptions) *HealthHandler {
	return &HealthHandler{
		queue:     opts.Queue,
		ffmpeg:    opts.FFmpeg,
		mqtt:      opts.MQTT,
		watcher:   opts.Watcher,
		version:   opts.Version,
		startTime: opts.StartTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK

	// ffmpeg is required for every job
	if h.ffmpeg != nil && !h.ffmpeg.Available() {
		checks["ffmpeg"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["ffmpeg"] = "ok"
	}

	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			if status == "healthy" {
				status = "degraded"
			}
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	resp := HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	}

	if h.watcher != nil {
		ws := h.watcher.Status()
		checks["file_watcher"] = ws.Status
		resp.Watcher = &ws
	} else {
		checks["file_watcher"] = "not_configured"
	}

	if h.queue != nil {
		qs := h.queue.Stats()
		resp.Queue = &qs
		if qs.Capacity > 0 && qs.Pending >= qs.Capacity {
			checks["queue"] = "full"
			if status == "healthy" {
				status = "degraded"
				resp.Status = status
			}
		} else {
			checks["queue"] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
