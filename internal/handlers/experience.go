package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fillesume/storefront/internal/animation"
	"github.com/fillesume/storefront/internal/interactive"
	"github.com/fillesume/storefront/internal/platform/httpx"
	"github.com/fillesume/storefront/internal/platform/session"
	"github.com/fillesume/storefront/internal/services"
)

// ExperienceHandlers exposes the interactive page-view sessions.
type ExperienceHandlers struct {
	experience services.ExperienceService
}

// NewExperienceHandlers constructs experience handlers.
func NewExperienceHandlers(experience services.ExperienceService) *ExperienceHandlers {
	return &ExperienceHandlers{experience: experience}
}

// Routes wires the /experience endpoints onto the provided router.
func (h *ExperienceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/hero", h.hero)
	r.Get("/showcase/{model}", h.showcase)
	r.Post("/sessions", h.start)
	r.Route("/sessions/{sessionId}", func(s chi.Router) {
		s.Delete("/", h.end)
		s.Post("/scroll", h.scroll)
		s.Get("/viewer", h.viewerState)
		s.Post("/viewer", h.viewer)
		s.Get("/mixing", h.mixingState)
		s.Post("/mixing", h.mixing)
	})
}

type scrollRequest struct {
	Progress *float64 `json:"progress"`
	Measured *bool    `json:"measured"`
	Time     float64  `json:"time"`
}

type viewerRequest struct {
	Action string  `json:"action"`
	DeltaX float64 `json:"deltaX"`
}

type mixingRequest struct {
	Action     string              `json:"action"`
	Ingredient string              `json:"ingredient"`
	Point      interactive.Point   `json:"point"`
	Receptacle interactive.HitRect `json:"receptacle"`
}

func (h *ExperienceHandlers) start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	view, err := h.experience.Start(ctx, session.FromContext(ctx))
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+url.PathEscape(view.ID))
	writeJSONResponse(w, http.StatusCreated, view)
}

func (h *ExperienceHandlers) end(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	if err := h.experience.End(ctx, session.FromContext(ctx), chi.URLParam(r, "sessionId")); err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ExperienceHandlers) scroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	var req scrollRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if req.Progress == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "progress is required", http.StatusBadRequest))
		return
	}
	measured := true
	if req.Measured != nil {
		measured = *req.Measured
	}
	result, err := h.experience.Scroll(ctx, services.ScrollCommand{
		ID:       chi.URLParam(r, "sessionId"),
		OwnerID:  session.FromContext(ctx),
		Progress: *req.Progress,
		Measured: measured,
		Time:     req.Time,
	})
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *ExperienceHandlers) viewer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	var req viewerRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	view, err := h.experience.Viewer(ctx, services.ViewerCommand{
		ID:      chi.URLParam(r, "sessionId"),
		OwnerID: session.FromContext(ctx),
		Action:  req.Action,
		DeltaX:  req.DeltaX,
	})
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *ExperienceHandlers) viewerState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	view, err := h.experience.ViewerState(ctx, session.FromContext(ctx), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *ExperienceHandlers) mixing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	var req mixingRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	view, err := h.experience.Mixing(ctx, services.MixingCommand{
		ID:         chi.URLParam(r, "sessionId"),
		OwnerID:    session.FromContext(ctx),
		Action:     req.Action,
		Ingredient: interactive.Ingredient(strings.ToLower(strings.TrimSpace(req.Ingredient))),
		Point:      req.Point,
		Receptacle: req.Receptacle,
	})
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

func (h *ExperienceHandlers) mixingState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	withDots, _ := strconv.ParseBool(r.URL.Query().Get("dots"))
	view, err := h.experience.MixingState(ctx, session.FromContext(ctx), chi.URLParam(r, "sessionId"), withDots)
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// hero renders one landing frame. Pointer coordinates default to the centre;
// passing session keeps the logo easing across frames.
func (h *ExperienceHandlers) hero(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	q := r.URL.Query()
	t, err := queryFloat(q, "t", 0)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	mx, err := queryFloat(q, "mx", animation.Centre.X)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	my, err := queryFloat(q, "my", animation.Centre.Y)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	width, err := queryInt(q, "width", 1440)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	dragging, _ := strconv.ParseBool(q.Get("dragging"))

	view, err := h.experience.Hero(ctx, services.HeroCommand{
		SessionID: q.Get("session"),
		OwnerID:   session.FromContext(ctx),
		T:         t,
		Pointer:   animation.Pointer{X: mx, Y: my},
		Dragging:  dragging,
		Width:     width,
	})
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, view)
}

// showcase renders one frame of a product model. geometry=true on the fiber
// model adds the wool ball built from seed.
func (h *ExperienceHandlers) showcase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.experience == nil {
		serviceUnavailable(ctx, w, "experience")
		return
	}
	q := r.URL.Query()
	t, err := queryFloat(q, "t", 0)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	width, err := queryInt(q, "width", 1440)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	height, err := queryInt(q, "height", 0)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	var seed uint64 = 1
	if raw := strings.TrimSpace(q.Get("seed")); raw != "" {
		seed, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "seed must be an unsigned integer", http.StatusBadRequest))
			return
		}
	}
	geometry, _ := strconv.ParseBool(q.Get("geometry"))

	view, err := h.experience.Showcase(ctx, services.ShowcaseCommand{
		Model:       chi.URLParam(r, "model"),
		T:           t,
		Width:       width,
		FixedHeight: height,
		Geometry:    geometry,
		Seed:        seed,
	})
	if err != nil {
		writeExperienceError(ctx, w, err)
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSONResponse(w, http.StatusOK, view)
}

func queryInt(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func queryFloat(q url.Values, name string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New(name + " must be a finite number")
	}
	return v, nil
}

func writeExperienceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrExperienceNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("experience_not_found", "experience session not found", http.StatusNotFound))
	case errors.Is(err, services.ErrExperienceInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrExperienceLocked):
		httpx.WriteError(ctx, w, httpx.NewError("mixing_locked", "mixing opens after the overlay reveal", http.StatusConflict))
	case errors.Is(err, services.ErrExperienceLimit):
		httpx.WriteError(ctx, w, httpx.NewError("experience_limit", "too many active sessions", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrExperienceClosed):
		serviceUnavailable(ctx, w, "experience")
	default:
		httpx.WriteError(ctx, w, httpx.NewError("experience_error", "experience request failed", http.StatusInternalServerError))
	}
}
