// Package receiver implements a local webhook endpoint that verifies spoofed
// deliveries the way a real destination would.
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/styxit/spoof/internal/signature"
)

const (
	// DefaultPath is the route deliveries are accepted on.
	DefaultPath = "/webhook"
	// DefaultMaxBodySize limits accepted payloads.
	DefaultMaxBodySize int64 = 1 << 20
)

// Config configures the receiver.
type Config struct {
	Listen      string
	Path        string
	Secret      []byte
	MaxBodySize int64
}

// Delivery is a verified webhook delivery.
type Delivery struct {
	Event      string
	DeliveryID string
	Header     string // signature header that was verified
	Payload    []byte
	ReceivedAt time.Time
}

// Server accepts and verifies webhook deliveries.
type Server struct {
	config     Config
	logger     zerolog.Logger
	onDelivery func(Delivery)
	server     *http.Server
}

// New creates a receiver. onDelivery is called for every verified delivery.
func New(config Config, logger zerolog.Logger, onDelivery func(Delivery)) *Server {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if onDelivery == nil {
		onDelivery = func(Delivery) {}
	}
	return &Server{
		config:     config,
		logger:     logger,
		onDelivery: onDelivery,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleWebhook)

	return r
}

// Start serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	if len(s.config.Secret) == 0 {
		return signature.ErrSecretRequired
	}

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().
		Str("listen", s.config.Listen).
		Str("path", s.config.Path).
		Msg("receiver starting")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("receiver shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("receiver shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("receiver error: %w", err)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("webhook request")
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	header := r.Header.Get(signature.HeaderSHA256)
	if header == "" {
		header = r.Header.Get(signature.HeaderSHA1)
	}
	if err := signature.Verify(s.config.Secret, body, header); err != nil {
		s.logger.Warn().Err(err).Str("path", r.URL.Path).Msg("signature verification failed")
		s.respondError(w, http.StatusForbidden, "forbidden")
		return
	}

	if !json.Valid(body) {
		s.respondError(w, http.StatusBadRequest, "payload is not valid JSON")
		return
	}

	d := Delivery{
		Event:      r.Header.Get("X-GitHub-Event"),
		DeliveryID: r.Header.Get("X-GitHub-Delivery"),
		Header:     header,
		Payload:    body,
		ReceivedAt: time.Now().UTC(),
	}
	s.onDelivery(d)

	s.respondJSON(w, http.StatusAccepted, map[string]any{
		"verified":    true,
		"event":       d.Event,
		"delivery_id": d.DeliveryID,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
