package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// Handler provides HTTP endpoints for the service catalog.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

// NewHandler creates a catalog HTTP handler.
func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterAdminRoutes mounts the catalog write endpoints under a chi router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.listAll)
	r.Post("/", h.create)
	r.Put("/{id}", h.update)
}

// ListActive handles the public catalog listing.
func (h *Handler) ListActive(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context(), true)
	if err != nil {
		h.logger.Error("catalog handler: list services", "error", err)
		respond.Internal(w)
		return
	}
	writeServiceList(w, services)
}

func (h *Handler) listAll(w http.ResponseWriter, r *http.Request) {
	services, err := h.store.ListServices(r.Context(), false)
	if err != nil {
		h.logger.Error("catalog handler: list services", "error", err)
		respond.Internal(w)
		return
	}
	writeServiceList(w, services)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var svc Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}

	if err := h.store.CreateService(r.Context(), &svc); err != nil {
		h.writeStoreError(w, "create service", err)
		return
	}

	h.logger.Info("service created", "id", svc.ID, "name", svc.Name)
	respond.JSON(w, http.StatusCreated, svc)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid service id")
		return
	}

	var svc Service
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}
	svc.ID = id

	if err := h.store.UpdateService(r.Context(), &svc); err != nil {
		h.writeStoreError(w, "update service", err)
		return
	}

	respond.JSON(w, http.StatusOK, svc)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrServiceNotFound):
		respond.Error(w, http.StatusNotFound, respond.KindNotFound, err.Error())
	case errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrInvalidDuration),
		errors.Is(err, ErrInvalidPrice),
		errors.Is(err, ErrInvalidCategory):
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, err.Error())
	default:
		h.logger.Error("catalog handler: "+op, "error", err)
		respond.Internal(w)
	}
}

func writeServiceList(w http.ResponseWriter, services []Service) {
	if services == nil {
		services = []Service{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{
		"services": services,
		"count":    len(services),
	})
}
