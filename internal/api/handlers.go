package api

import (
	"fmt"
	"net/http"
	"time"

	"caseflow/adapters/excel"
	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal/aggregate"
	"caseflow/internal/errors"
	"caseflow/internal/preprocess"
	"caseflow/internal/report"
	"caseflow/internal/session"

	"github.com/go-chi/render"
)

// sessionResponse summarizes the active session.
type sessionResponse struct {
	ID          core.SessionID          `json:"id"`
	Source      string                  `json:"source"`
	CreatedAt   time.Time               `json:"created_at"`
	Cases       int                     `json:"cases"`
	Coverage    caseload.DateRange      `json:"coverage"`
	Departments []string                `json:"departments"`
	Surgeons    int                     `json:"surgeons"`
	Rejects     preprocess.RejectReport `json:"rejects"`
	Params      session.Params          `json:"params"`
	Targets     caseload.Targets        `json:"targets,omitempty"`
}

func newSessionResponse(s *session.Session) sessionResponse {
	table := s.Table()
	return sessionResponse{
		ID:          s.ID,
		Source:      s.Source,
		CreatedAt:   s.CreatedAt,
		Cases:       table.Len(),
		Coverage:    table.Coverage(),
		Departments: table.Departments(),
		Surgeons:    len(table.Surgeons()),
		Rejects:     s.Report,
		Params:      s.Params(),
		Targets:     s.Targets(),
	}
}

func (s *Server) active() (*session.Session, error) {
	cur := s.sessions.Load()
	if cur == nil {
		return nil, errors.NotFound("active session")
	}
	return cur, nil
}

// view returns the active session seen through the request's query overrides.
// The overrides apply to this request only.
func (s *Server) view(r *http.Request) (*session.Session, error) {
	cur, err := s.active()
	if err != nil {
		return nil, err
	}
	req, err := paramsFromQuery(r.URL.Query())
	if err != nil {
		return nil, err
	}
	p, err := req.apply(cur.Params(), cur.Table().Coverage())
	if err != nil {
		return nil, err
	}
	return cur.WithParams(p)
}

func (s *Server) open(source string, records []caseload.RawRecord, targets caseload.Targets, req *paramsRequest) (*session.Session, error) {
	params := session.DefaultParams()
	if req != nil {
		var err error
		if params, err = req.apply(params, caseload.DateRange{}); err != nil {
			return nil, err
		}
	}
	opened, err := s.engine.Open(source, records, params)
	if err != nil {
		return nil, err
	}
	if len(targets) > 0 {
		opened = opened.WithTargets(targets)
	}
	if prev := s.sessions.Swap(opened); prev != nil {
		s.logger.Info("session %s replaced by %s", prev.ID, opened.ID)
	}
	s.events.Broadcast(Event{
		Type:      EventSessionOpened,
		SessionID: opened.ID.String(),
		Data:      map[string]any{"cases": opened.Table().Len(), "rejected": opened.Report.Count},
	})
	return opened, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, errors.InvalidInput("invalid JSON body: "+err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	source := req.Source
	if source == "" {
		source = "api"
	}
	opened, err := s.open(source, req.Records, req.Targets, req.Params)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newSessionResponse(opened))
}

// handleUploadSession accepts a multipart form with a "file" field holding
// an xlsx workbook or CSV export, and an optional "sheet" field.
func (s *Server) handleUploadSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, r, errors.InvalidInput("invalid multipart form: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, errors.InvalidInput("missing file field"))
		return
	}
	defer file.Close()

	reader := excel.NewDataReader(excel.Config{Sheet: r.FormValue("sheet")}, s.logger)
	data, err := reader.Read(file, excel.FileType(header.Filename))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	records, err := excel.ToRecords(data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	opened, err := s.open(header.Filename, records, nil, nil)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newSessionResponse(opened))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	cur, err := s.active()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, newSessionResponse(cur))
}

// handleUpdateParams makes the request's parameters the session default.
func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, errors.InvalidInput("invalid JSON body: "+err.Error()))
		return
	}
	updated, err := s.sessions.Update(func(cur *session.Session) (*session.Session, error) {
		p, err := req.apply(cur.Params(), cur.Table().Coverage())
		if err != nil {
			return nil, err
		}
		return cur.WithParams(p)
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.events.Broadcast(Event{Type: EventParamsChanged, SessionID: updated.ID.String()})
	render.JSON(w, r, newSessionResponse(updated))
}

func (s *Server) setTargets(targets caseload.Targets) (*session.Session, error) {
	updated, err := s.sessions.Update(func(cur *session.Session) (*session.Session, error) {
		return cur.WithTargets(targets), nil
	})
	if err != nil {
		return nil, err
	}
	s.events.Broadcast(Event{
		Type:      EventTargetsLoaded,
		SessionID: updated.ID.String(),
		Data:      map[string]any{"departments": len(targets.Departments())},
	})
	return updated, nil
}

func (s *Server) handleSetTargets(w http.ResponseWriter, r *http.Request) {
	var req targetsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.fail(w, r, errors.InvalidInput("invalid JSON body: "+err.Error()))
		return
	}
	if err := validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.setTargets(req.Targets)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, newSessionResponse(updated))
}

func (s *Server) handleUploadTargets(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.fail(w, r, errors.InvalidInput("invalid multipart form: "+err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, errors.InvalidInput("missing file field"))
		return
	}
	defer file.Close()

	targets, err := excel.ReadTargets(file, excel.FileType(header.Filename))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.setTargets(targets)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, newSessionResponse(updated))
}

func (s *Server) handleAggregates(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	aggs, err := s.engine.Aggregates(view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"params": view.Params(), "aggregates": aggs})
}

// handleSeries returns one grouping key's series. normalized=true divides
// case counts by business days.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		key = caseload.AllKey
	}
	aggs, err := s.engine.Aggregates(view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value := aggregate.ValueFor(view.Params().Metric)
	if r.URL.Query().Get("normalized") == "true" {
		value = aggregate.PerBusinessDay
	}
	series := aggregate.Series(aggs, key, value)
	if series.Len() == 0 {
		s.fail(w, r, errors.NotFound("series "+key))
		return
	}
	render.JSON(w, r, series)
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ranking, err := s.engine.Ranking(view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"params": view.Params(), "ranking": ranking})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if view.Params().Horizon < 1 {
		s.fail(w, r, core.NewValidationError("horizon", "must be at least 1"))
		return
	}
	result, err := s.engine.Forecast(r.Context(), view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, result)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	analysis, err := s.engine.Analyze(r.Context(), view)
	if err != nil {
		s.events.Broadcast(Event{Type: EventAnalysisFailed, SessionID: view.ID.String(), Data: map[string]any{"error": err.Error()}})
		s.fail(w, r, err)
		return
	}
	if s.store != nil {
		if err := s.store.Save(r.Context(), session.Key(view.ID, "analysis"), analysis); err != nil {
			s.logger.Warn("failed to save analysis snapshot: %v", err)
		}
	}
	render.JSON(w, r, analysis)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perf, err := s.engine.Performance(view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.store != nil {
		if err := s.store.Save(r.Context(), session.Key(view.ID, "performance"), perf); err != nil {
			s.logger.Warn("failed to save performance snapshot: %v", err)
		}
	}
	render.JSON(w, r, perf)
}

// handleReport renders the analysis as a document. format=md returns the
// Markdown source; anything else returns an HTML page.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	view, err := s.view(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	analysis, err := s.engine.Analyze(r.Context(), view)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	perf, err := s.engine.Performance(view)
	if err != nil {
		s.logger.Debug("report without performance section: %v", err)
		perf = nil
	}

	md := report.Markdown(s.engine.Calendar(), analysis, perf)
	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(md)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Caseload report</title></head><body>\n%s</body></html>\n", report.HTML(md))
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.fail(w, r, errors.NotFound("snapshot store"))
		return
	}
	cur, err := s.active()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keys, err := s.store.List(r.Context(), cur.ID.String()+"/")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"session_id": cur.ID, "snapshots": keys})
}
