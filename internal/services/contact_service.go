package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/fillesume/storefront/internal/platform/jobs"
)

// Visitor-facing contact outcomes.
const (
	MessageContactSent   = "¡Gracias por tu mensaje! Te responderemos pronto."
	MessageContactFailed = "Hubo un error al enviar tu mensaje. Por favor, intenta de nuevo."
)

const (
	maxContactNameLength    = 120
	maxContactMessageLength = 5000
)

// ContactSubjects maps the accepted subject values to their labels.
var ContactSubjects = map[string]string{
	"general":        "Consulta General",
	"products":       "Información de Productos",
	"sustainability": "Sostenibilidad",
	"collaboration":  "Colaboración",
	"press":          "Prensa",
	"wholesale":      "Ventas al Mayor",
}

var (
	// ErrContactInvalidInput reports a submission that failed validation.
	ErrContactInvalidInput = errors.New("contact service: invalid input")
	// ErrContactDeliveryFailed reports a submission that could not be delivered.
	ErrContactDeliveryFailed = errors.New("contact service: delivery failed")
)

// ContactValidationError lists the fields that failed validation.
type ContactValidationError struct {
	Fields map[string]string
}

func (e *ContactValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrContactInvalidInput, strings.Join(parts, "; "))
}

func (e *ContactValidationError) Unwrap() error { return ErrContactInvalidInput }

// ContactServiceDeps bundles the collaborators the contact service needs.
type ContactServiceDeps struct {
	Events jobs.Publisher
	Clock  func() time.Time
	IDGen  func() string
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type contactService struct {
	events jobs.Publisher
	now    func() time.Time
	newID  func() string
	policy *bluemonday.Policy
	logger func(context.Context, string, map[string]any)
}

// NewContactService constructs a ContactService.
func NewContactService(deps ContactServiceDeps) (ContactService, error) {
	if deps.Events == nil {
		return nil, errors.New("contact service: event publisher is required")
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &contactService{
		events: deps.Events,
		now:    func() time.Time { return now().UTC() },
		newID:  newID,
		policy: bluemonday.StrictPolicy(),
		logger: logger,
	}, nil
}

func (s *contactService) Submit(ctx context.Context, cmd ContactCommand) (ContactReceipt, error) {
	name := s.clean(cmd.Name)
	message := s.clean(cmd.Message)
	subject := strings.ToLower(strings.TrimSpace(cmd.Subject))
	email := strings.TrimSpace(cmd.Email)

	fields := map[string]string{}
	switch {
	case name == "":
		fields["name"] = "is required"
	case utf8.RuneCountInString(name) > maxContactNameLength:
		fields["name"] = fmt.Sprintf("must be at most %d characters", maxContactNameLength)
	}
	if email == "" {
		fields["email"] = "is required"
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		fields["email"] = "must be a valid address"
	}
	if _, ok := ContactSubjects[subject]; !ok {
		fields["subject"] = "must be one of the listed topics"
	}
	switch {
	case message == "":
		fields["message"] = "is required"
	case utf8.RuneCountInString(message) > maxContactMessageLength:
		fields["message"] = fmt.Sprintf("must be at most %d characters", maxContactMessageLength)
	}
	if len(fields) > 0 {
		return ContactReceipt{}, &ContactValidationError{Fields: fields}
	}

	receipt := ContactReceipt{ID: s.newID(), ReceivedAt: s.now(), Message: MessageContactSent}
	event := jobs.Event{
		ID:         receipt.ID,
		Type:       jobs.EventContactSubmitted,
		OccurredAt: receipt.ReceivedAt,
		SessionID:  cmd.SessionID,
		Payload: map[string]any{
			"name":         name,
			"email":        email,
			"subject":      subject,
			"subjectLabel": ContactSubjects[subject],
			"message":      message,
		},
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "contact.publish_failed", map[string]any{
			"contactId": receipt.ID,
			"error":     err.Error(),
		})
		return ContactReceipt{}, fmt.Errorf("%w: %v", ErrContactDeliveryFailed, err)
	}
	s.logger(ctx, "contact.submitted", map[string]any{
		"contactId": receipt.ID,
		"subject":   subject,
	})
	return receipt, nil
}

// clean strips markup and surrounding whitespace. The result is HTML-escaped text.
func (s *contactService) clean(value string) string {
	return strings.TrimSpace(s.policy.Sanitize(strings.TrimSpace(value)))
}
