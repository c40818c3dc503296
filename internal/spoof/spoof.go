// Package spoof composes template rendering, signing and delivery of fake webhook events.
package spoof

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/styxit/spoof/internal/delivery"
	"github.com/styxit/spoof/internal/logging"
	"github.com/styxit/spoof/internal/templates"
)

// MergeTemplate is the builtin pull request merge template.
const MergeTemplate = "pr-merge"

var (
	// ErrInvalidRepository is returned when a repository is not "owner/name".
	ErrInvalidRepository = errors.New("repository must be in owner/name form")
	// ErrEventRequired is returned when delivering a nil event.
	ErrEventRequired = errors.New("event is required")
)

// Renderer renders a named template into payload bytes.
type Renderer interface {
	Render(name string, vars map[string]string) ([]byte, error)
}

// Signer signs payload bytes.
type Signer interface {
	Sign(payload []byte) string
	Sign256(payload []byte) string
}

// Deliverer sends a signed request.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (*delivery.Response, error)
}

// Lookup resolves a template definition, used for the event header name.
type Lookup interface {
	Get(name string) (*templates.Template, error)
}

// Event is a rendered and signed webhook event ready to send.
// Payload is the exact byte sequence that was signed.
type Event struct {
	Template     string
	Name         string
	DeliveryID   string
	Payload      []byte
	Signature    string
	Signature256 string
}

// Request converts the event into a delivery request for url.
func (e *Event) Request(url string) delivery.Request {
	return delivery.Request{
		URL:          url,
		Event:        e.Name,
		DeliveryID:   e.DeliveryID,
		Payload:      e.Payload,
		Signature:    e.Signature,
		Signature256: e.Signature256,
	}
}

// Service prepares and delivers spoofed events.
type Service struct {
	lookup      Lookup
	renderer    Renderer
	signer      Signer
	deliverer   Deliverer
	destination string
	newID       func() string
	logger      zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator overrides delivery id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger overrides the service logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRenderer overrides the renderer, keeping lookup for event names.
func WithRenderer(renderer Renderer) Option {
	return func(s *Service) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

// NewService creates a Service. The registry supplies both template
// definitions and rendering.
func NewService(registry *templates.Registry, signer Signer, deliverer Deliverer, destination string, opts ...Option) *Service {
	s := &Service{
		lookup:      registry,
		renderer:    templates.NewRenderer(registry),
		signer:      signer,
		deliverer:   deliverer,
		destination: destination,
		newID:       uuid.NewString,
		logger:      logging.Component("spoof"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MergeVariables derives the pr-merge template variables.
func MergeVariables(repository, from, target string) (map[string]string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repository), "/")
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRepository, repository)
	}

	return map[string]string{
		"repoName":     name,
		"repoOwner":    owner,
		"repoFullName": owner + "/" + name,
		"from":         from,
		"target":       target,
	}, nil
}

// Prepare renders and signs an event. It returns either a complete event or an error.
func (s *Service) Prepare(templateName string, vars map[string]string) (*Event, error) {
	tmpl, err := s.lookup.Get(templateName)
	if err != nil {
		return nil, err
	}

	payload, err := s.renderer.Render(tmpl.Name, vars)
	if err != nil {
		return nil, err
	}

	eventName := tmpl.Event
	if eventName == "" {
		eventName = tmpl.Name
	}

	event := &Event{
		Template:     tmpl.Name,
		Name:         eventName,
		DeliveryID:   s.newID(),
		Payload:      payload,
		Signature:    s.signer.Sign(payload),
		Signature256: s.signer.Sign256(payload),
	}

	s.logger.Debug().
		Str("template", event.Template).
		Str("event", event.Name).
		Str("delivery_id", event.DeliveryID).
		Int("bytes", len(payload)).
		Msg("event prepared")

	return event, nil
}

// Deliver sends a prepared event to the configured destination.
func (s *Service) Deliver(ctx context.Context, event *Event) (*delivery.Response, error) {
	if event == nil {
		return nil, ErrEventRequired
	}
	return s.deliverer.Deliver(ctx, event.Request(s.destination))
}
