package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/battery-controller/db"
	"github.com/thatsimonsguy/battery-controller/internal/model"
	"github.com/thatsimonsguy/battery-controller/internal/state"
)

const defaultEventLimit = 50

type Server struct {
	db    *sql.DB
	board *state.Board
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, board *state.Board) *Server {
	return &Server{
		db:    database,
		board: board,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/charger", s.get(s.getCharger))
	mux.HandleFunc("/api/meter", s.get(s.getMeter))
	mux.HandleFunc("/api/health", s.get(s.getHealth))
	mux.HandleFunc("/api/events", s.get(s.getEvents))
	mux.HandleFunc("/api/events/last", s.get(s.getLastEvent))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("API server shutdown failed")
		}
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) get(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h(w, r)
	}
}

func (s *Server) getCharger(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.board.Charger())
}

func (s *Server) getMeter(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.board.Meter())
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	health := s.board.Health()
	status := http.StatusOK
	if health.Error {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *Server) getEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := db.GetRecentEvents(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get events")
		s.writeError(w, http.StatusInternalServerError, "Failed to get events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) getLastEvent(w http.ResponseWriter, r *http.Request) {
	kind := model.EventKind(r.URL.Query().Get("kind"))
	if kind == "" {
		s.writeError(w, http.StatusBadRequest, "kind required")
		return
	}

	event, err := db.GetLastEvent(s.db, kind)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, http.StatusNotFound, "No such event")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to get last event")
		s.writeError(w, http.StatusInternalServerError, "Failed to get event")
		return
	}
	s.writeJSON(w, http.StatusOK, event)
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
