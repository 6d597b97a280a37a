// Package api exposes the orchestrator's control surface over HTTP: virtual
// host and application status, ad-hoc pull requests, origin-map replacement,
// and the lifecycle event journal.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"emberlive/internal/config"
	"emberlive/internal/journal"
	"emberlive/internal/models"
	"emberlive/internal/orchestrator"
)

// StreamReporter routes stream lifecycle reports from a media-router daemon
// into the orchestrator's observers. Implemented by
// modules.RemoteMediaRouter.
type StreamReporter interface {
	ReportStreamCreated(app string, stream models.Stream) error
	ReportStreamDeleted(app string, stream models.Stream) error
}

// Handler carries the collaborators the admin endpoints need. Streams holds
// one reporter per registered media router; reports are offered to each in
// order until one accepts.
type Handler struct {
	Orch    *orchestrator.Orchestrator
	Journal journal.Journal
	Streams []StreamReporter
	Logger  *slog.Logger
}

// NewHandler constructs an admin API handler.
func NewHandler(orch *orchestrator.Orchestrator, jnl journal.Journal, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Orch: orch, Journal: jnl, Logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Health reports liveness. The orchestrator has no external hard
// dependencies, so health is a constant as long as the process serves.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"modules": h.Orch.ModuleCount(),
	})
}

// VHosts returns the current virtual-host tree with applications and the
// streams attributed to each origin.
func (h *Handler) VHosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vhosts": h.Orch.Status()})
}

// Resolve maps a domain (and optional app) to the owning virtual host.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	if domain == "" {
		writeError(w, http.StatusBadRequest, errors.New("domain query parameter is required"))
		return
	}
	vhost := h.Orch.GetVhostNameFromDomain(domain)
	if vhost == "" {
		writeError(w, http.StatusNotFound, fmt.Errorf("no virtual host for domain %q", domain))
		return
	}
	response := map[string]string{"domain": domain, "vhost": vhost}
	if app := strings.TrimSpace(r.URL.Query().Get("app")); app != "" {
		response["name"] = orchestrator.ResolveApplicationName(vhost, app)
	}
	writeJSON(w, http.StatusOK, response)
}

type pullRequest struct {
	Name   string `json:"name"`
	Stream string `json:"stream"`
	URL    string `json:"url,omitempty"`
	Offset int64  `json:"offset,omitempty"`
}

// Pulls accepts an ad-hoc pull request. With a URL the pull bypasses origin
// resolution; without one the origin rules of the virtual host decide the
// upstream.
func (h *Handler) Pulls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req pullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.Name == "" || req.Stream == "" {
		writeError(w, http.StatusBadRequest, errors.New("name and stream are required"))
		return
	}

	var err error
	if req.URL != "" {
		err = h.Orch.RequestPullStreamWithURL(r.Context(), req.Name, req.Stream, req.URL, req.Offset)
	} else {
		err = h.Orch.RequestPullStream(r.Context(), req.Name, req.Stream, req.Offset)
	}
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pulling"})
	case errors.Is(err, orchestrator.ErrNameUnresolved):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, orchestrator.ErrSchemeUnsupported):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

type originMapRequest struct {
	Hosts []config.Host `json:"hosts"`
}

// OriginMap replaces the desired configuration snapshot. The orchestrator
// reconciles live state against it; partial failures are reported but do
// not roll back the hosts that applied cleanly.
func (h *Handler) OriginMap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	var req originMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := (config.OriginMap{Hosts: req.Hosts}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.Orch.ApplyOriginMap(r.Context(), req.Hosts); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

type streamReport struct {
	Application string `json:"application"`
	Stream      struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"stream"`
	Event string `json:"event"`
}

// StreamEvents accepts stream birth and death reports from media-router
// daemons. The report names the application canonically; the matching
// observer files the stream under the rule whose pull produced it.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if len(h.Streams) == 0 {
		writeError(w, http.StatusServiceUnavailable, errors.New("no media router configured"))
		return
	}
	var report streamReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode report: %w", err))
		return
	}
	if report.Application == "" || report.Stream.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("application and stream name are required"))
		return
	}
	if report.Event != "created" && report.Event != "deleted" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown event %q", report.Event))
		return
	}

	info := models.Stream{ID: models.StreamID(report.Stream.ID), Name: report.Stream.Name}
	var lastErr error
	for _, reporter := range h.Streams {
		var err error
		if report.Event == "created" {
			err = reporter.ReportStreamCreated(report.Application, info)
		} else {
			err = reporter.ReportStreamDeleted(report.Application, info)
		}
		if err == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
			return
		}
		lastErr = err
	}
	writeError(w, http.StatusNotFound, lastErr)
}

// Events lists recent lifecycle events, newest first.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	if h.Journal == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": []journal.Event{}})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	events, err := h.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []journal.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
