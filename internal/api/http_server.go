package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sitesync/internal/config"
	"sitesync/internal/domain"
	"sitesync/internal/metrics"
	"sitesync/internal/models"
	"sitesync/internal/queue"
	"sitesync/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HTTPServer is the local consumer surface: the UI layer enqueues edits,
// triggers drains and reads sync status through it.
type HTTPServer struct {
	cfg     config.APIConfig
	queue   domain.OfflineQueue
	manager domain.SyncManager
	server  *http.Server
	auth    *HTTPAuth
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, q domain.OfflineQueue, manager domain.SyncManager, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, queue: q, manager: manager, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/updates", srv.handleUpdates)
	mux.HandleFunc("/api/v1/updates/", srv.handleUpdateByID)
	mux.HandleFunc("/api/v1/sync/status", srv.handleSyncStatus)
	mux.HandleFunc("/api/v1/sync/run", srv.handleSyncRun)
	mux.HandleFunc("/api/v1/sync/retry", srv.handleSyncRetry)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleUpdates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodGet:
		snap := s.queue.Snapshot()
		writeJSON(w, http.StatusOK, map[string]any{
			"updates":        snap.Updates,
			"failed_updates": snap.FailedUpdates,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ComponentID   string          `json:"component_id"`
		MilestoneName string          `json:"milestone_name"`
		Value         json.RawMessage `json:"value"`
		UserID        string          `json:"user_id"`
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if payload.ComponentID == "" || payload.MilestoneName == "" {
		writeError(w, http.StatusBadRequest, "component_id and milestone_name are required")
		return
	}

	body, err := decodeUpdatePayload(payload.ComponentID, payload.MilestoneName, payload.UserID, payload.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	update, err := s.queue.Enqueue(r.Context(), body)
	switch {
	case errors.Is(err, queue.ErrValueOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusConflict, "offline queue is full")
	case errors.Is(err, store.ErrStorageFull):
		writeError(w, http.StatusInsufficientStorage, "local storage is full, free space and retry")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to persist update")
	default:
		writeJSON(w, http.StatusCreated, update)
	}
}

func (s *HTTPServer) handleUpdateByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	const prefix = "/api/v1/updates/"
	id := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, prefix))
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "update id is required")
		return
	}

	if err := s.queue.Dequeue(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to remove update")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *HTTPServer) handleSyncRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.manager.SyncQueue(r.Context()))
}

func (s *HTTPServer) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.manager.RetrySync(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to requeue failed updates")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeUpdatePayload(component, milestone, userID string, raw json.RawMessage) (models.UpdatePayload, error) {
	if len(raw) == 0 {
		return models.UpdatePayload{}, fmt.Errorf("value is required")
	}
	var value models.MilestoneValue
	if err := json.Unmarshal(raw, &value); err != nil {
		return models.UpdatePayload{}, err
	}
	return models.UpdatePayload{
		ComponentID:   component,
		MilestoneName: milestone,
		Value:         value,
		UserID:        userID,
	}, nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		metrics.IncHTTP(r.URL.Path)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("dur", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
