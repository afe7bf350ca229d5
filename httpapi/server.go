// Package httpapi hosts the ingestion endpoint: a small HTTP surface
// that lets upstream systems push patient records onto the same bus the
// CDC listener feeds.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/ArsMedicaTech/fhir-sync/bus"
	"github.com/ArsMedicaTech/fhir-sync/domain"
	"github.com/ArsMedicaTech/fhir-sync/telemetry"
)

// maxBodyBytes caps an ingestion request body.
const maxBodyBytes = 1 << 20

// Server is the HTTP ingestion server. It owns one bus producer for
// the lifetime of the process.
type Server struct {
	producer *bus.Producer
	server   *http.Server
}

// NewServer builds the server and its routes.
func NewServer(addr string, producer *bus.Producer) *Server {
	s := &Server{producer: producer}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Post("/patient", s.handleIngestPatient)
	r.Get("/healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving. The error channel yields at most one error;
// a clean shutdown yields none.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	log.Info().Str("address", s.server.Addr).Msg("Starting HTTP ingestion server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
		close(errCh)
	}()
	return errCh
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP ingestion server")
	return s.server.Shutdown(ctx)
}

// handleIngestPatient accepts one patient record as JSON and publishes
// it onto the event bus. The bus applies backpressure: when it is full
// this handler blocks until space frees up or the client gives up.
func (s *Server) handleIngestPatient(w http.ResponseWriter, r *http.Request) {
	var patient domain.Patient

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&patient); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid patient payload: %v", err))
		return
	}

	if err := patient.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ev := domain.NewPatientUpsert(domain.OriginIngestion, patient)
	if err := s.producer.Publish(r.Context(), ev); err != nil {
		log.Warn().Err(err).Str("demographic_no", patient.DemographicNo).Msg("Failed to publish ingested patient")
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}

	log.Debug().Str("demographic_no", patient.DemographicNo).Msg("Ingested patient")
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "accepted",
		"demographic_no": patient.DemographicNo,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	telemetry.IngestRequestsTotal.With(strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestLogger logs one line per request in the process-wide format.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("HTTP request")
	})
}
