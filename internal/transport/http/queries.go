package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"axle-monitor/core/internal/service"
	"axle-monitor/core/internal/telemetry"
)

func (s *Server) timeRange(r *http.Request) (telemetry.TimeRange, error) {
	q := r.URL.Query()
	return telemetry.ParseTimeRange(q.Get("period"), q.Get("startDate"), q.Get("endDate"), s.now())
}

// pageOf reads page and limit; anything unparsable falls back to the
// defaults (first page, no limit).
func pageOf(r *http.Request) service.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return service.Page{Page: page, Limit: limit}
}

func pageMeta(p service.Page, total int, stats service.ScanStats, started time.Time) *meta {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return &meta{
		Total:         total,
		Page:          page,
		Limit:         p.Limit,
		TotalPages:    p.TotalPages(total),
		SkippedFrames: stats.SkippedFrames,
		SkippedRows:   stats.SkippedRows,
		Errors:        stats.Errors,
		QueryMs:       time.Since(started).Milliseconds(),
	}
}

func (s *Server) handleTrains(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	tr, err := s.timeRange(r)
	if err != nil {
		respondErr(w, err)
		return
	}

	report, err := s.deps.Telemetry.TrainSummaries(r.Context(), r.URL.Query().Get("deviceKey"), tr)
	if err != nil {
		respondErr(w, err)
		return
	}

	p := pageOf(r)
	respondWithMeta(w, partialStatus(report.Errors),
		service.Paginate(report.Trains, p),
		pageMeta(p, len(report.Trains), report.ScanStats, started))
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	tr, err := s.timeRange(r)
	if err != nil {
		respondErr(w, err)
		return
	}

	q := r.URL.Query()
	report, err := s.deps.Telemetry.Warnings(r.Context(), service.WarningQuery{
		DeviceKey: q.Get("deviceKey"),
		TrainID:   q.Get("trainId"),
		Range:     tr,
	})
	if err != nil {
		respondErr(w, err)
		return
	}

	p := pageOf(r)
	respondWithMeta(w, partialStatus(report.Errors),
		service.Paginate(report.Warnings, p),
		pageMeta(p, len(report.Warnings), report.ScanStats, started))
}

func (s *Server) handleTrainTemperatures(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Telemetry.TrainTemperatures(r.Context(), mux.Vars(r)["trainId"], pageOf(r))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeviceOverview(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Telemetry.DeviceOverview(r.Context(), mux.Vars(r)["deviceKey"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeviceState(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.State.DeviceState(r.Context(), mux.Vars(r)["deviceKey"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}
