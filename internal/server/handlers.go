package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/phraseloop/internal/analysis"
	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/playback"
	"github.com/maauso/phraseloop/internal/session"
)

// DefaultKeepAlive is how often an idle event stream receives a comment line.
const DefaultKeepAlive = 15 * time.Second

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *analysis.Service
	sessions           *session.Manager
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	keepAlive          time.Duration
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateAnalysis and Reanalyze only record the request
// without running the analysis.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithKeepAlive sets the event stream keep-alive interval.
func WithKeepAlive(d time.Duration) HandlerOption {
	return func(h *Handlers) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *analysis.Service, sessions *session.Manager, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		sessions:           sessions,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		keepAlive:          DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.sessions.Len()})
}

// CreateAnalysis handles POST /analyses requests.
func (h *Handlers) CreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req CreateAnalysisRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	var cfg *audio.AnalysisConfig
	if req.Config != nil {
		c := req.Config.apply(h.service.DefaultConfig())
		cfg = &c
	}

	created, err := h.service.Create(r.Context(), analysis.CreateInput{
		AudioBase64: req.AudioBase64,
		AudioName:   req.AudioName,
		Config:      cfg,
		PushToS3:    req.PushToS3,
	})
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}

	status := created.Status
	if h.enableAsyncProcess {
		started, err := h.service.Start(r.Context(), created.ID)
		if err != nil {
			h.writeServiceError(w, err, created.ID)
			return
		}
		status = started.GetStatus()
		h.executeAsync(r.Context(), created.ID)
	}

	h.logger.Info("analysis created",
		slog.String("analysis_id", created.ID),
		slog.String("audio_name", req.AudioName),
		slog.Bool("push_to_s3", req.PushToS3),
	)

	writeJSON(w, http.StatusAccepted, CreateAnalysisResponse{
		ID:     created.ID,
		Status: string(status),
	})
}

// ListAnalyses handles GET /analyses requests.
func (h *Handlers) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "")
		return
	}
	resp := ListAnalysesResponse{Analyses: make([]AnalysisResponse, len(list))}
	for i, a := range list {
		resp.Analyses[i] = newAnalysisResponse(a)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetAnalysis handles GET /analyses/{id} requests.
func (h *Handlers) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	found, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, newAnalysisResponse(found))
}

// DeleteAnalysis handles DELETE /analyses/{id} requests.
// It closes the practice session and removes the stored audio.
func (h *Handlers) DeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	h.sessions.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// Reanalyze handles POST /analyses/{id}/reanalyze requests.
func (h *Handlers) Reanalyze(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req ReanalyzeRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	var cfg *audio.AnalysisConfig
	if req.Config != nil {
		current, err := h.service.Get(r.Context(), id)
		if err != nil {
			h.writeServiceError(w, err, id)
			return
		}
		c := req.Config.apply(current.Clone().Config)
		cfg = &c
	}

	claimed, err := h.service.Reanalyze(r.Context(), id, cfg)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	if h.enableAsyncProcess {
		h.executeAsync(r.Context(), id)
	}

	writeJSON(w, http.StatusAccepted, CreateAnalysisResponse{
		ID:     id,
		Status: string(claimed.GetStatus()),
	})
}

// GetAudio handles GET /analyses/{id}/audio requests by streaming the
// uploaded source audio.
func (h *Handlers) GetAudio(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rc, err := h.service.OpenAudio(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	defer func() { _ = rc.Close() }()

	head := make([]byte, 512)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		h.logger.Error("failed to read audio",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to read audio", "AUDIO_READ_FAILED")
		return
	}
	head = head[:n]

	w.Header().Set("Content-Type", http.DetectContentType(head))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, io.MultiReader(bytes.NewReader(head), rc)); err != nil {
		h.logger.Warn("audio stream interrupted",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// GetSession handles GET /analyses/{id}/session requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

// UpdateSettings handles PUT /analyses/{id}/session/settings requests.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}
	if err := s.SetSettings(req.apply(s.Settings())); err != nil {
		h.writeServiceError(w, err, s.AnalysisID())
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

// Play handles POST /analyses/{id}/session/play requests.
func (h *Handlers) Play(w http.ResponseWriter, r *http.Request) {
	var req PlayRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}
	err := s.Play(*req.Index, playback.PlayOptions{Speed: req.Speed, InfiniteLoop: req.InfiniteLoop})
	if err != nil {
		h.writeServiceError(w, err, s.AnalysisID())
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

// Stop handles POST /analyses/{id}/session/stop requests. It never opens
// a session.
func (h *Handlers) Stop(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		h.writeServiceError(w, err, id)
		return
	}
	s.Stop()
	writeJSON(w, http.StatusOK, newSessionResponse(s.Snapshot()))
}

// Events handles GET /analyses/{id}/session/events requests with a
// server-sent event stream of the session lifecycle.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported", "STREAMING_UNSUPPORTED")
		return
	}
	s, ok := h.openSession(w, r)
	if !ok {
		return
	}

	sub := s.Subscribe()
	defer s.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "session", newSessionResponse(s.Snapshot())); err != nil {
		return
	}
	flusher.Flush()

	logger := h.logger.With(slog.String("analysis_id", s.AnalysisID()))
	logger.Info("event listener connected")
	defer logger.Info("event listener disconnected")

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-sub.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-sub.C:
			if err := writeEvent(w, string(e.Type), newEventResponse(e)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// openSession resolves the analysis in the request path and returns its
// practice session, writing the error response on failure.
func (h *Handlers) openSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Open(id, func(analysisID string) (*analysis.Analysis, error) {
		return h.service.Get(r.Context(), analysisID)
	})
	if err != nil {
		h.writeServiceError(w, err, id)
		return nil, false
	}
	return s, true
}

// executeAsync runs a claimed analysis in the background with a detached
// context so it outlives the request.
func (h *Handlers) executeAsync(ctx context.Context, id string) {
	go func(ctx context.Context, analysisID string) {
		if _, err := h.service.Execute(ctx, analysisID); err != nil {
			h.logger.Error("background analysis failed",
				slog.String("analysis_id", analysisID),
				slog.String("error", err.Error()),
			)
		}
	}(context.WithoutCancel(ctx), id)
}

// decode reads and validates a JSON body into dst. With optional set, an
// empty body is accepted.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			h.logger.Warn("failed to decode request body",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
			return false
		}
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error, id string) {
	switch {
	case errors.Is(err, analysis.ErrAnalysisNotFound):
		writeError(w, http.StatusNotFound, "analysis not found", "ANALYSIS_NOT_FOUND")
	case errors.Is(err, analysis.ErrInvalidAudio):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_AUDIO")
	case errors.Is(err, audio.ErrInvalidConfig):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_CONFIG")
	case errors.Is(err, playback.ErrInvalidSettings):
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_SETTINGS")
	case errors.Is(err, analysis.ErrAnalysisBusy):
		writeError(w, http.StatusConflict, err.Error(), "ANALYSIS_BUSY")
	case errors.Is(err, session.ErrNotReady):
		writeError(w, http.StatusConflict, "analysis has no segments yet", "ANALYSIS_NOT_READY")
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "no open session", "SESSION_NOT_FOUND")
	case errors.Is(err, session.ErrUnknownSegment):
		writeError(w, http.StatusNotFound, err.Error(), "SEGMENT_NOT_FOUND")
	default:
		h.logger.Error("request failed",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "analysis ID is required", "MISSING_ANALYSIS_ID")
		return "", false
	}
	return id, true
}

// writeEvent writes one server-sent event.
func writeEvent(w io.Writer, name string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, body)
	return err
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
