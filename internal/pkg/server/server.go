package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/model"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
)

type store interface {
	Get(path string) (state.Entry, bool)
	List() []state.Entry
	Set(ctx context.Context, path string, value any) error
	Events() state.EventSubscriber
}

type history interface {
	GetProperties(ctx context.Context, path string, from, to *time.Time) (model.Properties, error)
	GetLatestProperties(ctx context.Context) (model.Properties, error)
	GetPropertyDefinitions(ctx context.Context) ([]model.PropertyDefinition, error)
}

type server struct {
	cfg      *config.ServerConfig
	store    store
	history  history
	ready    func() bool
	logger   *zap.Logger
	upgrader websocket.Upgrader
	clock    func() time.Time
}

// New builds the HTTP API. history may be nil when no database is configured.
func New(cfg *config.ServerConfig, st store, hist history, ready func() bool) *server {
	return &server{
		cfg:     cfg,
		store:   st,
		history: hist,
		ready:   ready,
		logger:  zap.L(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clock: time.Now,
	}
}

func (s *server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware)

	r.HandleFunc("/healthz", s.getHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/token", s.postToken).Methods(http.MethodPost)
	api.HandleFunc("/states", s.getStates).Methods(http.MethodGet)
	api.HandleFunc("/states/{path}", s.getState).Methods(http.MethodGet)
	api.HandleFunc("/states/{path}", s.requireToken(s.putState)).Methods(http.MethodPut)
	api.HandleFunc("/history", s.getRecorded).Methods(http.MethodGet)
	api.HandleFunc("/history/latest", s.getLatest).Methods(http.MethodGet)
	api.HandleFunc("/history/{path}", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/events", s.getEvents).Methods(http.MethodGet)
	return r
}

type healthResponse struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
}

func (s *server) getHealth(w http.ResponseWriter, _ *http.Request) {
	ready := s.ready != nil && s.ready()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Ready: ready})
}

func (s *server) getStates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *server) getState(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	entry, ok := s.store.Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", state.ErrUnknownProperty, path))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type setRequest struct {
	Value any `json:"value"`
}

func (s *server) putState(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	req, err := unmarshalPayload[setRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.Set(r.Context(), path, req.Value); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("state change requested", zap.String("path", path), zap.Any("value", req.Value))
	entry, _ := s.store.Get(path)
	writeJSON(w, http.StatusAccepted, entry)
}

var errNoHistory = errors.New("history not configured")

// getRecorded lists the properties the history store knows about.
func (s *server) getRecorded(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errNoHistory)
		return
	}
	defs, err := s.history.GetPropertyDefinitions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if defs == nil {
		defs = []model.PropertyDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *server) getLatest(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errNoHistory)
		return
	}
	props, err := s.history.GetLatestProperties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if props == nil {
		props = model.Properties{}
	}
	writeJSON(w, http.StatusOK, props)
}

func (s *server) getHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, errNoHistory)
		return
	}
	from, err := parseTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	props, err := s.history.GetProperties(r.Context(), mux.Vars(r)["path"], from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if props == nil {
		props = model.Properties{}
	}
	writeJSON(w, http.StatusOK, props)
}

// getEvents streams store events over a websocket until the client leaves.
func (s *server) getEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	events := make(chan state.Event, 64)
	s.store.Events().Subscribe(events)
	defer s.store.Events().Unsubscribe(events)

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case e := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				s.logger.Debug("websocket client gone", zap.Error(err))
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, state.ErrUnknownProperty):
		return http.StatusNotFound
	case errors.Is(err, state.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, state.ErrInvalidValue):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func parseTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unmarshalPayload[T any](r *http.Request) (*T, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var payload T
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
