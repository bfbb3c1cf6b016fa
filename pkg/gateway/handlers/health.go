package handlers

import (
	"encoding/json"
	"net/http"

	corelive "github.com/voxloop-go/voxloop/pkg/core/live"
	"github.com/voxloop-go/voxloop/pkg/gateway/live/session"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// ReadyHandler reports whether the configured session parameters are
// internally consistent.
type ReadyHandler struct {
	Orchestrator corelive.OrchestratorConfig
	Session      session.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK     bool     `json:"ok"`
		Issues []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	if h.Orchestrator.Audio.BytesPerSecond() <= 0 {
		issues = append(issues, "audio config yields zero byte rate")
	}
	if h.Orchestrator.VAD.Threshold < 0 || h.Orchestrator.VAD.Threshold > 100 {
		issues = append(issues, "vad threshold must be within [0,100]")
	}
	if h.Orchestrator.VAD.SilenceDurationMs <= 0 {
		issues = append(issues, "vad silence duration must be > 0")
	}
	if h.Orchestrator.MaxBufferMs <= 0 {
		issues = append(issues, "max buffer duration must be > 0")
	}
	if h.Session.MaxAudioFrameBytes <= 0 {
		issues = append(issues, "max audio frame bytes must be > 0")
	}
	if h.Session.MaxJSONMessageBytes <= 0 {
		issues = append(issues, "max json message bytes must be > 0")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(readyResp{OK: ok, Issues: issues})
}
