package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/internal/catalog"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// WorkBlockStore is the storage surface for the work-block admin endpoints.
type WorkBlockStore interface {
	CreateWorkBlock(ctx context.Context, b *WorkBlock) error
	ListWorkBlocks(ctx context.Context, staffID *uuid.UUID) ([]WorkBlock, error)
	DeleteWorkBlock(ctx context.Context, id uuid.UUID) error
}

// Handler provides the booking, lifecycle and availability HTTP endpoints.
type Handler struct {
	service *Service
	blocks  WorkBlockStore
	tz      *time.Location
	logger  *logging.Logger
}

// NewHandler creates a scheduling HTTP handler. tz is the clinic timezone used
// to interpret availability dates; nil means UTC.
func NewHandler(service *Service, blocks WorkBlockStore, tz *time.Location, logger *logging.Logger) *Handler {
	if tz == nil {
		tz = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, blocks: blocks, tz: tz, logger: logger}
}

// RegisterRoutes mounts the public scheduling endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/availability", h.availability)
	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.book)
		r.Get("/{id}", h.getAppointment)
		r.Post("/{id}/confirm", h.confirm)
		r.Post("/{id}/start", h.start)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/no-show", h.noShow)
		r.Post("/{id}/reschedule", h.reschedule)
	})
}

// RegisterAdminRoutes mounts the work-block admin endpoints.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.listWorkBlocks)
	r.Post("/", h.createWorkBlock)
	r.Delete("/{id}", h.deleteWorkBlock)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	day, err := time.ParseInLocation("2006-01-02", q.Get("date"), h.tz)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "date must be YYYY-MM-DD")
		return
	}
	serviceID, err := uuid.Parse(q.Get("service_id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "service_id must be a uuid")
		return
	}
	var staffID *uuid.UUID
	if s := q.Get("staff_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, respond.KindValidation, "staff_id must be a uuid")
			return
		}
		staffID = &id
	}

	slots, err := h.service.Availability(r.Context(), day, serviceID, staffID)
	if err != nil {
		h.writeDomainError(w, "availability", err)
		return
	}
	if slots == nil {
		slots = []Slot{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"date":       day.Format("2006-01-02"),
		"service_id": serviceID,
		"slots":      slots,
		"count":      len(slots),
	})
}

type bookRequest struct {
	OwnerID   uuid.UUID  `json:"owner_id"`
	PetID     *uuid.UUID `json:"pet_id"`
	ServiceID uuid.UUID  `json:"service_id"`
	StaffID   uuid.UUID  `json:"staff_id"`
	StartTime time.Time  `json:"start_time"`
	Notes     string     `json:"notes"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}
	if req.OwnerID == uuid.Nil || req.ServiceID == uuid.Nil || req.StaffID == uuid.Nil || req.StartTime.IsZero() {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "owner_id, service_id, staff_id and start_time are required")
		return
	}

	appt, err := h.service.Book(r.Context(), BookRequest{
		OwnerID:   req.OwnerID,
		PetID:     req.PetID,
		ServiceID: req.ServiceID,
		StaffID:   req.StaffID,
		Start:     req.StartTime,
		Notes:     req.Notes,
	})
	if err != nil {
		h.writeDomainError(w, "book", err)
		return
	}
	respond.JSON(w, http.StatusCreated, appt)
}

func (h *Handler) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.service.store.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "get appointment", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "confirm", h.service.Confirm)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "start", h.service.Start)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "complete", h.service.Complete)
}

func (h *Handler) noShow(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, "no-show", h.service.MarkNoShow)
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, id uuid.UUID) (*Appointment, error)) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := fn(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, op, err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}
	appt, err := h.service.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.writeDomainError(w, "cancel", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type rescheduleRequest struct {
	StartTime time.Time `json:"start_time"`
}

func (h *Handler) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StartTime.IsZero() {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "start_time is required")
		return
	}
	appt, err := h.service.Reschedule(r.Context(), id, req.StartTime)
	if err != nil {
		h.writeDomainError(w, "reschedule", err)
		return
	}
	respond.JSON(w, http.StatusOK, appt)
}

type workBlockRequest struct {
	StaffID uuid.UUID `json:"staff_id"`
	Weekday int       `json:"weekday"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	Active  *bool     `json:"active"`
}

type workBlockView struct {
	ID      uuid.UUID `json:"id"`
	StaffID uuid.UUID `json:"staff_id"`
	Weekday int       `json:"weekday"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	Active  bool      `json:"active"`
}

func viewWorkBlock(b WorkBlock) workBlockView {
	return workBlockView{
		ID:      b.ID,
		StaffID: b.StaffID,
		Weekday: b.Weekday,
		Start:   FormatMinutes(b.StartMinutes),
		End:     FormatMinutes(b.EndMinutes),
		Active:  b.Active,
	}
}

func (h *Handler) listWorkBlocks(w http.ResponseWriter, r *http.Request) {
	var staffID *uuid.UUID
	if s := r.URL.Query().Get("staff_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			respond.Error(w, http.StatusBadRequest, respond.KindValidation, "staff_id must be a uuid")
			return
		}
		staffID = &id
	}

	blocks, err := h.blocks.ListWorkBlocks(r.Context(), staffID)
	if err != nil {
		h.writeDomainError(w, "list work blocks", err)
		return
	}
	views := make([]workBlockView, 0, len(blocks))
	for _, b := range blocks {
		views = append(views, viewWorkBlock(b))
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"work_blocks": views,
		"count":       len(views),
	})
}

func (h *Handler) createWorkBlock(w http.ResponseWriter, r *http.Request) {
	var req workBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}
	if req.StaffID == uuid.Nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "staff_id is required")
		return
	}
	startMin, err := ParseMinutes(req.Start)
	if err != nil {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "start must be HH:MM")
		return
	}
	endMin, err := ParseMinutes(req.End)
	if err != nil {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "end must be HH:MM")
		return
	}

	block := &WorkBlock{
		StaffID:      req.StaffID,
		Weekday:      req.Weekday,
		StartMinutes: startMin,
		EndMinutes:   endMin,
		Active:       true,
	}
	if req.Active != nil {
		block.Active = *req.Active
	}
	if err := h.blocks.CreateWorkBlock(r.Context(), block); err != nil {
		h.writeDomainError(w, "create work block", err)
		return
	}
	h.logger.Info("work block created", "id", block.ID, "staff_id", block.StaffID, "weekday", block.Weekday)
	respond.JSON(w, http.StatusCreated, viewWorkBlock(*block))
}

func (h *Handler) deleteWorkBlock(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid work block id")
		return
	}
	if err := h.blocks.DeleteWorkBlock(r.Context(), id); err != nil {
		h.writeDomainError(w, "delete work block", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid appointment id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrPetRequired),
		errors.Is(err, ErrOutsideWorkingHours),
		errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrServiceInactive),
		errors.Is(err, ErrInvalidWorkBlock):
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, err.Error())
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrIllegalTransition):
		respond.Error(w, http.StatusConflict, respond.KindConflict, err.Error())
	case errors.Is(err, ErrAppointmentNotFound),
		errors.Is(err, ErrWorkBlockNotFound),
		errors.Is(err, catalog.ErrServiceNotFound):
		respond.Error(w, http.StatusNotFound, respond.KindNotFound, err.Error())
	default:
		h.logger.Error("scheduling handler: "+op, "error", err)
		respond.Internal(w)
	}
}
