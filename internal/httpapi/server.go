// Package httpapi exposes the coordinator over HTTP: POST /apps to register
// a new AppSpec dynamically, DELETE /apps/{handle} to remove one, GET
// /status for a liveness check (it reports no inventory), and /metrics for
// Prometheus scraping. Grounded on gorilla/mux's router
// style as used for helixml-helix's other HTTP surfaces, paired with
// promhttp for the metrics endpoint.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/evision-ai/evision-lib/internal/coordinator"
	"github.com/evision-ai/evision-lib/internal/model"
)

// AddRequest is the JSON body POST /apps accepts, mirroring the engine's
// configuration surface. Callback is not settable over HTTP; apps
// added this way must be wired to a callback the server process owns — see
// CallbackLookup.
type AddRequest struct {
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	SourceURI      any        `json:"source_uri"`
	SourceType     string     `json:"source_type"`
	HandlerName    string     `json:"handler_name"`
	Endless        bool       `json:"endless"`
	FrameQueueSize int        `json:"frame_queue_size"`
	NativeFPS      float64    `json:"native_fps"`
	TargetShape    *shapeJSON `json:"target_shape"`
	Zone           *zoneJSON  `json:"zone"`
	ProcessRateFPS float64    `json:"process_rate_fps"`
	BatchSize      int        `json:"batch_size"`
	Dedupe         *bool      `json:"dedupe"`
	FailOnError    bool       `json:"fail_on_error"`
	CallbackName   string     `json:"callback_name"`
}

type shapeJSON struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type zoneJSON struct {
	StartX int `json:"start_x"`
	StartY int `json:"start_y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// CallbackLookup resolves a named callback registered by the embedding
// application; POST /apps references callbacks by name since a function
// value has no JSON representation.
type CallbackLookup func(name string) (func(batch []model.ImageFrame) error, bool)

// Server wraps a gorilla/mux router around one Coordinator.
type Server struct {
	coord  *coordinator.Coordinator
	lookup CallbackLookup
	router *mux.Router
}

// New builds a Server. lookup resolves callback names referenced by POST
// /apps bodies.
func New(coord *coordinator.Coordinator, lookup CallbackLookup) *Server {
	s := &Server{coord: coord, lookup: lookup, router: mux.NewRouter()}
	s.router.HandleFunc("/apps", s.handleAdd).Methods(http.MethodPost)
	s.router.HandleFunc("/apps/{handle}", s.handleRemove).Methods(http.MethodDelete)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	callback, ok := s.lookup(req.CallbackName)
	if !ok {
		writeError(w, http.StatusBadRequest, errUnknownCallback(req.CallbackName))
		return
	}

	spec := model.AppSpec{
		Name:        req.Name,
		Description: req.Description,
		Source: model.SourceConfig{
			URI:            req.SourceURI,
			Type:           model.SourceType(req.SourceType),
			Handler:        model.HandlerName(req.HandlerName),
			Endless:        req.Endless,
			FrameQueueSize: req.FrameQueueSize,
			NativeFPS:      req.NativeFPS,
		},
		ProcessRateFPS: req.ProcessRateFPS,
		BatchSize:      req.BatchSize,
		Dedupe:         req.Dedupe,
		FailOnError:    req.FailOnError,
		Callback:       callback,
	}
	if req.TargetShape != nil {
		spec.TargetShape = &model.Shape{Width: req.TargetShape.Width, Height: req.TargetShape.Height}
	}
	if req.Zone != nil {
		spec.Zone = &model.Zone{
			StartX: req.Zone.StartX,
			StartY: req.Zone.StartY,
			Width:  req.Zone.Width,
			Height: req.Zone.Height,
		}
	}

	handle, err := s.coord.Add(r.Context(), spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"handle": string(handle)})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	handle := coordinator.Handle(mux.Vars(r)["handle"])
	if err := s.coord.Remove(handle); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func errUnknownCallback(name string) error {
	return &unknownCallbackError{name: name}
}

type unknownCallbackError struct{ name string }

func (e *unknownCallbackError) Error() string {
	return "httpapi: unknown callback " + e.name
}
