package followup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// QueueService is the queue surface the HTTP layer needs.
type QueueService interface {
	ListOpen(ctx context.Context, reminderType string) ([]*Item, error)
	Acknowledge(ctx context.Context, id uuid.UUID, staff string) error
	Resolve(ctx context.Context, id uuid.UUID, staff, note string) error
}

// Handler exposes the staff follow-up queue.
type Handler struct {
	svc    QueueService
	logger *logging.Logger
}

// NewHandler creates the follow-up HTTP handler.
func NewHandler(svc QueueService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterAdminRoutes mounts the queue endpoints.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/followups", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{id}/ack", h.acknowledge)
		r.Post("/{id}/resolve", h.resolve)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	reminderType := r.URL.Query().Get("reminder_type")
	if reminderType != "" && !reminders.ValidReminderType(reminders.ReminderType(reminderType)) {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "unknown reminder_type")
		return
	}

	items, err := h.svc.ListOpen(r.Context(), reminderType)
	if err != nil {
		h.logger.Error("follow-up list failed", "error", err)
		respond.Internal(w)
		return
	}
	if items == nil {
		items = []*Item{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"followups": items, "count": len(items)})
}

type actionRequest struct {
	Staff string `json:"staff"`
	Note  string `json:"note"`
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	if err := h.svc.Acknowledge(r.Context(), id, req.Staff); err != nil {
		h.writeTransitionError(w, "acknowledge", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusAcknowledged})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, req, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	if err := h.svc.Resolve(r.Context(), id, req.Staff, req.Note); err != nil {
		h.writeTransitionError(w, "resolve", err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]any{"id": id, "status": StatusResolved})
}

func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request) (uuid.UUID, actionRequest, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "id must be a uuid")
		return uuid.Nil, actionRequest{}, false
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return uuid.Nil, actionRequest{}, false
	}
	if req.Staff == "" {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "staff is required")
		return uuid.Nil, actionRequest{}, false
	}
	return id, req, true
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, respond.KindNotFound, "follow-up not found")
	case errors.Is(err, ErrNotPending), errors.Is(err, ErrAlreadyResolved):
		respond.Error(w, http.StatusConflict, respond.KindConflict, err.Error())
	default:
		h.logger.Error("follow-up transition failed", "op", op, "error", err)
		respond.Internal(w)
	}
}
