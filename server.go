package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/gazepoint/internal/gaze"
	"github.com/banshee-data/gazepoint/internal/httputil"
	"github.com/banshee-data/gazepoint/internal/monitor"
	"github.com/banshee-data/gazepoint/internal/monitoring"
	"github.com/banshee-data/gazepoint/internal/store"
)

// Server exposes the engine's control surface over HTTP. All state lives in
// the engine and the store; handlers are thin translations.
type Server struct {
	engine    *gaze.Engine
	mapper    *gaze.PolynomialMapper
	db        *store.DB
	charts    *monitor.ChartServer
	modelPath string
}

func NewServer(engine *gaze.Engine, mapper *gaze.PolynomialMapper, db *store.DB, charts *monitor.ChartServer, modelPath string) *Server {
	return &Server{
		engine:    engine,
		mapper:    mapper,
		db:        db,
		charts:    charts,
		modelPath: modelPath,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tracking/start", s.startTracking)
	mux.HandleFunc("/api/tracking/stop", s.stopTracking)
	mux.HandleFunc("/api/calibration/start", s.startCalibration)
	mux.HandleFunc("/api/calibration/cancel", s.cancelCalibration)
	mux.HandleFunc("/api/calibration/retry-fit", s.retryCalibrationFit)
	mux.HandleFunc("/api/click-enabled", s.setClickEnabled)
	mux.HandleFunc("/api/sensitivity", s.setSensitivity)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/events", s.listEvents)
	mux.HandleFunc("/api/fits", s.listFits)
	mux.HandleFunc("/debug/gaze-chart", s.charts.HandleGazeChart)
	mux.HandleFunc("/debug/ear-chart", s.charts.HandleEARChart)
	return mux
}

func (s *Server) startTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	if err := s.engine.StartTracking(); err != nil {
		httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"status": "tracking"})
}

func (s *Server) stopTracking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.engine.StopTracking()
	httputil.WriteJSONOK(w, map[string]string{"status": "idle"})
}

// startCalibration runs the full 9-point session synchronously; the request
// returns when the fit completes or fails. On success the model is saved to
// modelPath so the next process start reloads it.
func (s *Server) startCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	result, err := s.engine.StartCalibration(r.Context(), func(p gaze.CalibrationProgress) {
		monitoring.Logf("calibration point %d: %d/%d samples", p.PointIndex, p.SamplesDone, p.SamplesNeed)
	})
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			httputil.WriteJSONError(w, http.StatusConflict, "calibration cancelled")
		case errors.Is(err, gaze.ErrCaptureFailure):
			httputil.WriteJSONError(w, http.StatusBadGateway, fmt.Sprintf("frame capture failed: %v", err))
		default:
			httputil.InternalServerError(w, fmt.Sprintf("calibration failed: %v", err))
		}
		return
	}

	s.finishCalibration(w, result)
}

// retryCalibrationFit re-runs the fit over the samples of the last failed
// session without another capture pass.
func (s *Server) retryCalibrationFit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	result, err := s.engine.RetryCalibrationFit()
	if err != nil {
		switch {
		case errors.Is(err, gaze.ErrDegenerateFit):
			httputil.InternalServerError(w, fmt.Sprintf("calibration fit failed: %v", err))
		default:
			httputil.WriteJSONError(w, http.StatusConflict, err.Error())
		}
		return
	}

	s.finishCalibration(w, result)
}

// finishCalibration saves the freshly fitted model and reports the result.
func (s *Server) finishCalibration(w http.ResponseWriter, result *gaze.CalibrationResult) {
	if s.modelPath != "" {
		if err := s.mapper.Save(s.modelPath); err != nil {
			monitoring.Logf("failed to save calibration model to %s: %v", s.modelPath, err)
		}
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"session_id":       result.SessionID,
		"mean_residual_px": result.MeanResidualPx,
		"sample_count":     result.SampleCount,
	})
}

func (s *Server) cancelCalibration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	s.engine.CancelCalibration()
	httputil.WriteJSONOK(w, map[string]string{"status": "cancelled"})
}

func (s *Server) setClickEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		httputil.BadRequest(w, `body must be {"enabled": true|false}`)
		return
	}

	s.engine.SetClickEnabled(*body.Enabled)
	httputil.WriteJSONOK(w, map[string]bool{"click_enabled": *body.Enabled})
}

func (s *Server) setSensitivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body struct {
		MarginFraction *float64 `json:"margin_fraction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MarginFraction == nil {
		httputil.BadRequest(w, `body must be {"margin_fraction": f}`)
		return
	}

	if err := s.engine.SetSensitivity(*body.MarginFraction); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]float64{"margin_fraction": *body.MarginFraction})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	httputil.WriteJSONOK(w, s.engine.Status())
}

// queryLimit parses an optional ?limit= parameter, returning 0 (store
// default) when absent.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return limit, nil
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	events, err := s.db.RecentEvents(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve events: %v", err))
		return
	}
	httputil.WriteJSONOK(w, events)
}

func (s *Server) listFits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	fits, err := s.db.RecentFits(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to retrieve fits: %v", err))
		return
	}
	httputil.WriteJSONOK(w, fits)
}
