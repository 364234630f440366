package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wardenhq/warden/pkg/directory"
	"github.com/wardenhq/warden/pkg/middleware"
	"github.com/wardenhq/warden/pkg/observability"
	"github.com/wardenhq/warden/pkg/review"
)

// Server is the warden admin API server
type Server struct {
	router *mux.Router

	committer *review.Committer
	users     *directory.UserService
	roles     *directory.RoleService
	devices   *directory.DeviceService
	settings  *directory.SettingService

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates a new API server and wires its routes
func NewServer(
	committer *review.Committer,
	users *directory.UserService,
	roles *directory.RoleService,
	devices *directory.DeviceService,
	settings *directory.SettingService,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		committer: committer,
		users:     users,
		roles:     roles,
		devices:   devices,
		settings:  settings,
		logger:    logger,
		metrics:   metrics,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// User routes: edits are staged in the session ledger, not applied
	s.router.HandleFunc("/api/v1/users", s.listUsers).Methods("GET")
	s.router.HandleFunc("/api/v1/users", s.stageUserCreate).Methods("POST")
	s.router.HandleFunc("/api/v1/users/{id}", s.stageUserUpdate).Methods("PUT")
	s.router.HandleFunc("/api/v1/users/{id}", s.stageUserDelete).Methods("DELETE")
	s.router.HandleFunc("/api/v1/users/{id}/retire", s.stageUserRetire).Methods("POST")
	s.router.HandleFunc("/api/v1/users/{id}/unlock", s.stageUserUnlock).Methods("POST")

	// Role routes
	s.router.HandleFunc("/api/v1/roles", s.listRoles).Methods("GET")
	s.router.HandleFunc("/api/v1/roles", s.stageRoleCreate).Methods("POST")
	s.router.HandleFunc("/api/v1/roles/{id}", s.stageRoleUpdate).Methods("PUT")
	s.router.HandleFunc("/api/v1/roles/{id}", s.stageRoleDelete).Methods("DELETE")

	// Device routes
	s.router.HandleFunc("/api/v1/devices", s.listDevices).Methods("GET")
	s.router.HandleFunc("/api/v1/devices", s.stageDeviceCreate).Methods("POST")
	s.router.HandleFunc("/api/v1/devices/{id}", s.stageDeviceUpdate).Methods("PUT")
	s.router.HandleFunc("/api/v1/devices/{id}", s.stageDeviceDelete).Methods("DELETE")

	// Setting routes (update only)
	s.router.HandleFunc("/api/v1/settings", s.listSettings).Methods("GET")
	s.router.HandleFunc("/api/v1/settings/{id}", s.stageSettingUpdate).Methods("PUT")

	// Pending-changes routes
	s.router.HandleFunc("/api/v1/pending-changes", s.readPendingChanges).Methods("GET")
	s.router.HandleFunc("/api/v1/pending-changes", s.overwritePendingChanges).Methods("PUT")
	s.router.HandleFunc("/api/v1/pending-changes/save", s.reviewAndSave).Methods("POST")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the server wrapped in the standard middleware chain
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.router
	handler = s.metrics.InstrumentHandler("/api/v1", handler)
	handler = middleware.Logging(s.logger)(handler)
	handler = middleware.Session(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.logger)(handler)
	return handler
}
