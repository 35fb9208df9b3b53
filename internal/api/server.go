// Package api serves the JSON HTTP API for entries, settings, forecasts, and alerts.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rewired-gh/cashcast/internal/forecast"
	"github.com/rewired-gh/cashcast/internal/logger"
	"github.com/rewired-gh/cashcast/internal/models"
	"github.com/rewired-gh/cashcast/internal/storage"
	"github.com/rs/cors"
)

// Config holds API limits and CORS origins.
type Config struct {
	MaxWeeks       int
	AllowedOrigins []string
}

// Server routes API requests to a Storage.
type Server struct {
	store   *storage.Storage
	config  Config
	handler http.Handler
	newID   func(prefix string) string
}

// NewServer builds the router and CORS wrapper for store.
func NewServer(store *storage.Storage, config Config) *Server {
	s := &Server{
		store:  store,
		config: config,
		newID: func(prefix string) string {
			return prefix + uuid.New().String()[:8]
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK")) //nolint:errcheck
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	for _, c := range []*entryCodec{expenseCodec, revenueCodec} {
		api.HandleFunc(c.path, s.listEntries(c)).Methods(http.MethodGet)
		api.HandleFunc(c.path, s.createEntry(c)).Methods(http.MethodPost)
		api.HandleFunc(c.path+"/{id}", s.getEntry(c)).Methods(http.MethodGet)
		api.HandleFunc(c.path+"/{id}", s.updateEntry(c)).Methods(http.MethodPut)
		api.HandleFunc(c.path+"/{id}", s.deleteEntry(c)).Methods(http.MethodDelete)
	}
	api.HandleFunc("/settings", s.getSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", s.updateSettings).Methods(http.MethodPut)
	api.HandleFunc("/forecast/calculate", s.calculateForecast).Methods(http.MethodPost)
	api.HandleFunc("/alerts", s.listAlerts).Methods(http.MethodGet)

	origins := config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	s.handler = c.Handler(r)
	return s
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	var fe *models.FieldError
	switch {
	case errors.Is(err, forecast.ErrInvalidRequest), errors.As(err, &fe):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrEntryLimit), errors.Is(err, storage.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return &models.FieldError{Field: "body", Reason: strings.TrimPrefix(err.Error(), "json: ")}
	}
	return nil
}
