package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fillesume/storefront/internal/platform/httpx"
	"github.com/fillesume/storefront/internal/platform/session"
	"github.com/fillesume/storefront/internal/services"
)

// ContactHandlers exposes the contact form endpoint.
type ContactHandlers struct {
	contact services.ContactService
}

// NewContactHandlers constructs contact handlers.
func NewContactHandlers(contact services.ContactService) *ContactHandlers {
	return &ContactHandlers{contact: contact}
}

// Routes wires the /contact endpoints onto the provided router.
func (h *ContactHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/subjects", h.subjects)
	r.Post("/", h.submit)
}

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type contactSubject struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var contactSubjectOrder = []string{"general", "products", "sustainability", "collaboration", "press", "wholesale"}

func (h *ContactHandlers) subjects(w http.ResponseWriter, _ *http.Request) {
	subjects := make([]contactSubject, 0, len(contactSubjectOrder))
	for _, value := range contactSubjectOrder {
		subjects = append(subjects, contactSubject{Value: value, Label: services.ContactSubjects[value]})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (h *ContactHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.contact == nil {
		serviceUnavailable(ctx, w, "contact")
		return
	}
	var req contactRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	receipt, err := h.contact.Submit(ctx, services.ContactCommand{
		SessionID: session.FromContext(ctx),
		Name:      req.Name,
		Email:     req.Email,
		Subject:   req.Subject,
		Message:   req.Message,
	})
	if err != nil {
		writeContactError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, receipt)
}

func writeContactError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.ContactValidationError
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "some fields need attention", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": validation.Fields}))
	case errors.Is(err, services.ErrContactDeliveryFailed):
		httpx.WriteError(ctx, w, httpx.NewError("contact_delivery_failed", services.MessageContactFailed, http.StatusBadGateway).
			WithNotice(services.MessageContactFailed))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("contact_error", services.MessageContactFailed, http.StatusInternalServerError).
			WithNotice(services.MessageContactFailed))
	}
}
