package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/maintenance"
	"axle-monitor/core/internal/telemetry"
)

func (s *Server) handleListMaintenance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.MaintenanceFilter{
		DeviceID: q.Get("deviceId"),
		Status:   domain.MaintenanceStatus(q.Get("status")),
	}
	if q.Get("from") != "" || q.Get("to") != "" {
		tr, err := telemetry.ParseTimeRange(telemetry.PeriodCustom, q.Get("from"), q.Get("to"), s.now())
		if err != nil {
			respondErr(w, err)
			return
		}
		f.From, f.To = tr.Start, tr.End
	}

	recs, err := s.deps.Maintenance.List(r.Context(), f)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondWithMeta(w, http.StatusOK, recs, &meta{Total: len(recs)})
}

func (s *Server) handleMaintenanceOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.deps.Maintenance.Overview(r.Context(), s.now())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ov)
}

func (s *Server) handleMarkDone(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Maintenance.MarkDone(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleAssignEngineer(w http.ResponseWriter, r *http.Request) {
	var e maintenance.Engineer
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&e); err != nil {
		respondErr(w, fmt.Errorf("%w: invalid JSON: %v", domain.ErrInvalidInput, err))
		return
	}

	rec, err := s.deps.Maintenance.AssignEngineer(r.Context(), mux.Vars(r)["id"], e)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleMaintenanceTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Scheduler.Tick(r.Context(), s.now())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, partialStatus(res.Errors), res)
}

func (s *Server) handleSeedDeployment(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Maintenance.SeedDeployment(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int{"created": n})
}
