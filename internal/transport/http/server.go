// Package http exposes ingestion, queries and maintenance actions over a
// JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"axle-monitor/core/internal/auth"
	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/maintenance"
	"axle-monitor/core/internal/service"
	"axle-monitor/core/internal/telemetry"
)

type FrameDispatcher interface {
	Dispatch(f *domain.RawFrame)
}

type TelemetryQueries interface {
	TrainSummaries(ctx context.Context, deviceKey string, r telemetry.TimeRange) (*service.TrainReport, error)
	Warnings(ctx context.Context, q service.WarningQuery) (*service.WarningReport, error)
	DeviceOverview(ctx context.Context, deviceKey string) (*service.DeviceOverview, error)
	TrainTemperatures(ctx context.Context, trainID string, p service.Page) (*service.TrainTemperatures, error)
}

type StateReader interface {
	DeviceState(ctx context.Context, deviceKey string) (*domain.DeviceState, error)
}

type MaintenanceOperations interface {
	SeedDeployment(ctx context.Context, deviceID string) (int, error)
	MarkDone(ctx context.Context, id string) (*domain.MaintenanceRecord, error)
	AssignEngineer(ctx context.Context, id string, e maintenance.Engineer) (*domain.MaintenanceRecord, error)
	Overview(ctx context.Context, now time.Time) (domain.MaintenanceOverview, error)
	List(ctx context.Context, f domain.MaintenanceFilter) ([]domain.MaintenanceRecord, error)
}

type MaintenanceTicker interface {
	Tick(ctx context.Context, now time.Time) (maintenance.TickResult, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the server's collaborators. Metrics and WS may be nil, which
// leaves those routes unregistered.
type Deps struct {
	Auth        *auth.Authenticator
	Dispatcher  FrameDispatcher
	Telemetry   TelemetryQueries
	State       StateReader
	Maintenance MaintenanceOperations
	Scheduler   MaintenanceTicker
	Health      map[string]Pinger
	Metrics     http.Handler
	WS          http.Handler
	Logger      *zap.Logger
}

type Server struct {
	deps    Deps
	router  *mux.Router
	logger  *zap.Logger
	now     func() time.Time
	maxBody int64
}

func NewServer(d Deps) *Server {
	s := &Server{
		deps:    d,
		router:  mux.NewRouter(),
		logger:  d.Logger,
		now:     time.Now,
		maxBody: 10 << 20,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}
	if s.deps.WS != nil {
		s.router.Handle("/ws", s.deps.WS)
	}

	api := s.router.PathPrefix("/api").Subrouter()

	ingest := NewAuthMiddleware(s.deps.Auth).Wrap(http.HandlerFunc(s.handleIngest))
	api.Handle("/iot-data", ingest).Methods(http.MethodPost)

	api.HandleFunc("/trains", s.handleTrains).Methods(http.MethodGet)
	api.HandleFunc("/trains/{trainId}/temperatures", s.handleTrainTemperatures).Methods(http.MethodGet)
	api.HandleFunc("/warnings", s.handleWarnings).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceKey}/overview", s.handleDeviceOverview).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceKey}/state", s.handleDeviceState).Methods(http.MethodGet)

	api.HandleFunc("/maintenance", s.handleListMaintenance).Methods(http.MethodGet)
	api.HandleFunc("/maintenance/overview", s.handleMaintenanceOverview).Methods(http.MethodGet)
	api.HandleFunc("/maintenance/tick", s.handleMaintenanceTick).Methods(http.MethodPost)
	api.HandleFunc("/maintenance/{id}/done", s.handleMarkDone).Methods(http.MethodPatch)
	api.HandleFunc("/maintenance/{id}/engineer", s.handleAssignEngineer).Methods(http.MethodPut)
	api.HandleFunc("/devices/{deviceId}/deployment", s.handleSeedDeployment).Methods(http.MethodPost)

	s.router.Use(recoverMiddleware(s.logger))
	s.router.Use(loggingMiddleware(s.logger))
}

func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.deps.Health))
	healthy := true
	for name, p := range s.deps.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	if !healthy {
		respond(w, http.StatusServiceUnavailable, apiResponse{Success: false, Data: checks, Error: "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy", "checks": checks})
}
