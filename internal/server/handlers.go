package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kubilitics/kubilitics-vitals/internal/analytics/insight"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/report"
	"github.com/kubilitics/kubilitics-vitals/internal/analytics/signal"
	"github.com/kubilitics/kubilitics-vitals/internal/db"
	"github.com/kubilitics/kubilitics-vitals/internal/models"
	"github.com/kubilitics/kubilitics-vitals/internal/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// generateOptions merges a request with the configured generator defaults.
func (s *Server) generateOptions(req GenerateRequest) (signal.Options, error) {
	g := s.cfg.Generator
	opts := signal.Options{
		Days:            g.Days,
		SamplesPerDay:   g.SamplesPerDay,
		Seed:            g.Seed,
		OutlierFraction: g.OutlierFraction,
	}
	if req.Days != nil {
		opts.Days = *req.Days
	}
	if req.SamplesPerDay != nil {
		opts.SamplesPerDay = *req.SamplesPerDay
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.OutlierFraction != nil {
		opts.OutlierFraction = *req.OutlierFraction
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if opts.Days*opts.SamplesPerDay > MaxSamples {
		return opts, fmt.Errorf("%w: at most %d samples per dataset", models.ErrInvalidParameter, MaxSamples)
	}
	return opts, nil
}

func summarize(e *session.Entry) DatasetSummary {
	ds := e.Dataset
	sum := DatasetSummary{
		ID:            e.ID,
		CreatedAt:     e.CreatedAt,
		Days:          ds.Days,
		SamplesPerDay: ds.SamplesPerDay,
		Seed:          ds.Seed,
		Samples:       ds.Len(),
		Outliers:      len(ds.Outliers),
		Detected:      e.Detection != nil,
	}
	if ds.Len() > 0 {
		sum.Start = ds.Samples[0].Timestamp
		sum.End = ds.Samples[ds.Len()-1].Timestamp
	}
	return sum
}

func (s *Server) handleCreateDataset(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondErrorWithCode(w, r, http.StatusBadRequest, ErrCodeInvalidRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	opts, err := s.generateOptions(req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ds, err := s.engine.GenerateWith(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id := s.sessions.Put(ds)
	var sum DatasetSummary
	err = s.sessions.WithRead(id, func(e *session.Entry) error {
		sum = summarize(e)
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.logger.Info("Dataset created", zap.String("id", id), zap.Int("samples", sum.Samples), zap.Int64("seed", sum.Seed))
	respondJSON(w, http.StatusCreated, sum)
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	out := make([]DatasetSummary, 0)
	for _, id := range s.sessions.IDs() {
		// entries evicted between IDs and WithRead are skipped
		_ = s.sessions.WithRead(id, func(e *session.Entry) error {
			out = append(out, summarize(e))
			return nil
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"datasets": out})
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var resp DatasetResponse
	err := s.sessions.WithRead(id, func(e *session.Entry) error {
		resp.DatasetSummary = summarize(e)
		resp.Rows = append([]models.Sample(nil), e.Dataset.Samples...)
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(mux.Vars(r)["id"]) {
		s.respondError(w, r, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	release, err := s.acquireAnalysis(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer release()

	resp := DetectResponse{ID: id}
	err = s.sessions.WithWrite(id, func(e *session.Entry) error {
		det, err := s.engine.Detect(r.Context(), e.Dataset)
		if err != nil {
			return err
		}
		e.Detection = det
		resp.Detection = det
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var body interface{}
	err := s.sessions.WithRead(id, func(e *session.Entry) error {
		hs, err := s.engine.Score(r.Context(), e.Dataset)
		if err != nil {
			return err
		}
		body = hs
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	resp := InsightsResponse{ID: id}
	err := s.sessions.WithRead(id, func(e *session.Entry) error {
		insights, err := s.engine.Insights(r.Context(), e.Dataset)
		if err != nil {
			return err
		}
		resp.Insights = insights
		resp.Messages = insight.Messages(insights)
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleReport runs the full analysis. With persist=true the run is stored.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	persist, _ := strconv.ParseBool(r.URL.Query().Get("persist"))
	if persist && s.store == nil {
		respondErrorWithCode(w, r, http.StatusServiceUnavailable, ErrCodePersistenceDisabled, "persistence is disabled")
		return
	}

	release, err := s.acquireAnalysis(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer release()

	resp := ReportResponse{ID: id}
	var rec *db.RunRecord
	err = s.sessions.WithWrite(id, func(e *session.Entry) error {
		res, err := s.engine.Run(r.Context(), e.Dataset)
		if err != nil {
			return err
		}
		e.Detection = res.Detection
		resp.Report = res.Report
		if persist {
			rec, err = db.NewRunRecord(e.Dataset, res.Detection, res.Report)
			return err
		}
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if rec != nil {
		if err := s.store.SaveRun(r.Context(), rec); err != nil {
			s.respondError(w, r, fmt.Errorf("failed to persist run: %w", err))
			return
		}
		resp.RunID = rec.ID
		s.logger.Info("Run persisted", zap.String("run_id", rec.ID), zap.String("dataset_id", id))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	resp := AnomaliesResponse{ID: id, Anomalies: []report.AnomalyEntry{}}
	err = s.sessions.WithRead(id, func(e *session.Entry) error {
		resp.Detected = e.Detection != nil
		if !resp.Detected {
			return nil
		}
		n := limit
		if n <= 0 {
			n = e.Dataset.Len()
		}
		resp.Anomalies = report.RecentAnomalies(e.Dataset, e.Detection, n)
		return nil
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondErrorWithCode(w, r, http.StatusServiceUnavailable, ErrCodePersistenceDisabled, "persistence is disabled")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, RunsResponse{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondErrorWithCode(w, r, http.StatusServiceUnavailable, ErrCodePersistenceDisabled, "persistence is disabled")
		return
	}
	id := mux.Vars(r)["id"]
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	anomalies, err := s.store.RunAnomalies(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	run.Anomalies = anomalies
	respondJSON(w, http.StatusOK, run)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidParameter, key)
	}
	return v, nil
}

func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", models.ErrInvalidParameter, key)
	}
	return v, nil
}
