// Package server provides the HTTP server for the phraseloop API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/phraseloop/internal/analysis"
	"github.com/maauso/phraseloop/internal/audio"
	"github.com/maauso/phraseloop/internal/playback"
	"github.com/maauso/phraseloop/internal/session"
)

// AnalysisConfigRequest overrides individual analysis thresholds. Omitted
// fields keep their base value.
type AnalysisConfigRequest struct {
	// SilenceAmplitude is the silence threshold as a linear amplitude.
	SilenceAmplitude *float64 `json:"silence_amplitude" validate:"omitempty,gt=0,lt=1"`
	// SilenceDB is the silence threshold in dBFS. It wins over SilenceAmplitude.
	SilenceDB *float64 `json:"silence_db" validate:"omitempty,gte=-60,lte=-10"`
	// MinSilenceDuration is the minimum pause in seconds that ends a segment.
	MinSilenceDuration *float64 `json:"min_silence_duration" validate:"omitempty,gt=0,lte=10"`
	// MinSegmentDuration is the shortest emitted segment in seconds.
	MinSegmentDuration *float64 `json:"min_segment_duration" validate:"omitempty,gt=0,lte=60"`
	// MaxSegmentDuration is the longest segment in seconds before it is split.
	MaxSegmentDuration *float64 `json:"max_segment_duration" validate:"omitempty,gt=0,lte=300"`
	// Energy selects the window energy measure: rms or mean_abs.
	Energy *string `json:"energy" validate:"omitempty,oneof=rms mean_abs"`
}

// apply returns base with the requested overrides.
func (r *AnalysisConfigRequest) apply(base audio.AnalysisConfig) audio.AnalysisConfig {
	if r == nil {
		return base
	}
	cfg := base
	if r.SilenceAmplitude != nil {
		cfg.SilenceAmplitude = *r.SilenceAmplitude
	}
	if r.SilenceDB != nil {
		cfg.SilenceAmplitude = audio.DBToAmplitude(*r.SilenceDB)
	}
	if r.MinSilenceDuration != nil {
		cfg.MinSilenceDuration = *r.MinSilenceDuration
	}
	if r.MinSegmentDuration != nil {
		cfg.MinSegmentDuration = *r.MinSegmentDuration
	}
	if r.MaxSegmentDuration != nil {
		cfg.MaxSegmentDuration = *r.MaxSegmentDuration
	}
	if r.Energy != nil {
		cfg.Energy = audio.EnergyMeasure(*r.Energy)
	}
	return cfg
}

// CreateAnalysisRequest is the HTTP request body for uploading audio.
type CreateAnalysisRequest struct {
	// AudioBase64 is the base64-encoded source audio in any ffmpeg-readable format.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// AudioName is an optional original file name.
	AudioName string `json:"audio_name" validate:"omitempty,max=255"`
	// Config overrides the default analysis thresholds.
	Config *AnalysisConfigRequest `json:"config" validate:"omitempty"`
	// PushToS3 indicates whether to export the segment list to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateAnalysisResponse is the HTTP response after creating an analysis.
type CreateAnalysisResponse struct {
	// ID is the unique identifier for the created analysis.
	ID string `json:"id"`
	// Status is the analysis status after the request.
	Status string `json:"status"`
}

// ReanalyzeRequest is the HTTP request body for re-running an analysis.
// An empty body keeps the previous thresholds.
type ReanalyzeRequest struct {
	Config *AnalysisConfigRequest `json:"config" validate:"omitempty"`
}

// SegmentResponse describes one segment.
type SegmentResponse struct {
	Index    int     `json:"index"`
	Label    string  `json:"label"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
}

// AnalysisResponse is the HTTP response for getting analysis details.
type AnalysisResponse struct {
	ID             string               `json:"id"`
	Status         string               `json:"status"`
	Error          string               `json:"error,omitempty"`
	AudioName      string               `json:"audio_name,omitempty"`
	Config         audio.AnalysisConfig `json:"config"`
	Runs           int                  `json:"runs"`
	SourceDuration float64              `json:"source_duration"`
	Segments       []SegmentResponse    `json:"segments"`
	Summary        audio.Summary        `json:"summary"`
	// SegmentsURL is the S3 URL of the exported segment list (if push_to_s3=true).
	SegmentsURL string     `json:"segments_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newAnalysisResponse(a *analysis.Analysis) AnalysisResponse {
	snapshot := a.Clone()
	resp := AnalysisResponse{
		ID:             snapshot.ID,
		Status:         string(snapshot.Status),
		Error:          snapshot.Error,
		AudioName:      snapshot.AudioName,
		Config:         snapshot.Config,
		Runs:           snapshot.Runs,
		SourceDuration: snapshot.SourceDuration,
		Segments:       make([]SegmentResponse, len(snapshot.Segments)),
		Summary:        snapshot.Summary,
		SegmentsURL:    snapshot.SegmentsURL,
		CreatedAt:      snapshot.CreatedAt,
		UpdatedAt:      snapshot.UpdatedAt,
	}
	for i, seg := range snapshot.Segments {
		resp.Segments[i] = SegmentResponse{
			Index:    seg.Index,
			Label:    seg.Label(),
			Start:    seg.Start,
			End:      seg.End,
			Duration: seg.Duration(),
		}
	}
	if !snapshot.CompletedAt.IsZero() {
		completed := snapshot.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

// ListAnalysesResponse is the HTTP response for listing analyses.
type ListAnalysesResponse struct {
	Analyses []AnalysisResponse `json:"analyses"`
}

// SettingsRequest updates practice session settings. Omitted fields keep
// their current value.
type SettingsRequest struct {
	Speed          *float64 `json:"speed" validate:"omitempty,gte=0.25,lte=3"`
	LoopTarget     *int     `json:"loop_target" validate:"omitempty,gte=1,lte=10"`
	ContinuousMode *bool    `json:"continuous_mode"`
}

func (r SettingsRequest) apply(base playback.Settings) playback.Settings {
	st := base
	if r.Speed != nil {
		st.Speed = *r.Speed
	}
	if r.LoopTarget != nil {
		st.LoopTarget = *r.LoopTarget
	}
	if r.ContinuousMode != nil {
		st.ContinuousMode = *r.ContinuousMode
	}
	return st
}

// PlayRequest starts a segment.
type PlayRequest struct {
	// Index is the zero-based segment index.
	Index *int `json:"index" validate:"required,gte=0"`
	// Speed overrides the session speed for this segment. Zero keeps it.
	Speed float64 `json:"speed" validate:"omitempty,gte=0.25,lte=3"`
	// InfiniteLoop repeats the segment until stopped.
	InfiniteLoop bool `json:"infinite_loop"`
}

// SessionResponse is the HTTP response describing a practice session.
type SessionResponse struct {
	AnalysisID     string  `json:"analysis_id"`
	Status         string  `json:"status"`
	ActiveIndex    int     `json:"active_index"`
	LoopsCompleted int     `json:"loops_completed"`
	Generation     uint64  `json:"generation"`
	Speed          float64 `json:"speed"`
	LoopTarget     int     `json:"loop_target"`
	ContinuousMode bool    `json:"continuous_mode"`
	Playing        bool    `json:"playing"`
	Rate           float64 `json:"rate"`
	Position       float64 `json:"position"`
	Duration       float64 `json:"duration"`
	Segments       int     `json:"segments"`
	Listeners      int     `json:"listeners"`
}

func newSessionResponse(s session.Snapshot) SessionResponse {
	return SessionResponse{
		AnalysisID:     s.AnalysisID,
		Status:         string(s.State.Status),
		ActiveIndex:    s.State.ActiveIndex,
		LoopsCompleted: s.State.LoopsCompleted,
		Generation:     s.State.Generation,
		Speed:          s.Settings.Speed,
		LoopTarget:     s.Settings.LoopTarget,
		ContinuousMode: s.Settings.ContinuousMode,
		Playing:        s.Playing,
		Rate:           s.Rate,
		Position:       s.Position,
		Duration:       s.Duration,
		Segments:       s.Segments,
		Listeners:      s.Listeners,
	}
}

// EventResponse is one server-sent session event.
type EventResponse struct {
	Type       string    `json:"type"`
	Index      int       `json:"index"`
	Loops      int       `json:"loops,omitempty"`
	Generation uint64    `json:"generation"`
	Reason     string    `json:"reason,omitempty"`
	Time       time.Time `json:"time"`
}

func newEventResponse(e playback.Event) EventResponse {
	return EventResponse{
		Type:       string(e.Type),
		Index:      e.Index,
		Loops:      e.Loops,
		Generation: e.Generation,
		Reason:     e.Reason,
		Time:       e.Time,
	}
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// Sessions is the number of open practice sessions.
	Sessions int `json:"sessions"`
}
