package clinic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// ProfileStore is the persistence the profile handler needs.
type ProfileStore interface {
	Get(ctx context.Context) (*Profile, error)
	Set(ctx context.Context, p *Profile) error
}

// Handler serves the clinic profile endpoints.
type Handler struct {
	store  ProfileStore
	logger *logging.Logger
}

// NewHandler creates a profile HTTP handler.
func NewHandler(store ProfileStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// RegisterAdminRoutes mounts the profile endpoints on an admin router.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Route("/clinic", func(r chi.Router) {
		r.Get("/", h.getProfile)
		r.Put("/", h.updateProfile)
	})
}

// getProfile returns the stored profile, or the defaults before any save.
// GET /api/v1/admin/clinic
func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("load clinic profile", "error", err)
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, profile)
}

// updateProfileRequest supports partial updates. Empty strings leave the
// stored value alone.
type updateProfileRequest struct {
	Name              string `json:"name,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	EmergencyLine     string `json:"emergency_line,omitempty"`
	Address           string `json:"address,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	ZipCode           string `json:"zip_code,omitempty"`
	WebsiteURL        string `json:"website_url,omitempty"`
	ReminderLeadHours *int   `json:"reminder_lead_hours,omitempty"`
}

// updateProfile merges the request into the stored profile.
// PUT /api/v1/admin/clinic
func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid JSON body")
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			respond.Error(w, http.StatusUnprocessableEntity, respond.KindConfiguration,
				fmt.Sprintf("unknown timezone %q", req.Timezone))
			return
		}
	}
	if req.ReminderLeadHours != nil && (*req.ReminderLeadHours < 1 || *req.ReminderLeadHours > 168) {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation,
			"reminder_lead_hours must be between 1 and 168")
		return
	}

	profile, err := h.store.Get(r.Context())
	if err != nil {
		h.logger.Error("load clinic profile", "error", err)
		respond.Internal(w)
		return
	}

	if req.Name != "" {
		profile.Name = req.Name
	}
	if req.Timezone != "" {
		profile.Timezone = req.Timezone
	}
	if req.Email != "" {
		profile.Email = req.Email
	}
	if req.Phone != "" {
		profile.Phone = req.Phone
	}
	if req.EmergencyLine != "" {
		profile.EmergencyLine = req.EmergencyLine
	}
	if req.Address != "" {
		profile.Address = req.Address
	}
	if req.City != "" {
		profile.City = req.City
	}
	if req.State != "" {
		profile.State = req.State
	}
	if req.ZipCode != "" {
		profile.ZipCode = req.ZipCode
	}
	if req.WebsiteURL != "" {
		profile.WebsiteURL = req.WebsiteURL
	}
	if req.ReminderLeadHours != nil {
		profile.ReminderLeadHours = *req.ReminderLeadHours
	}

	if err := h.store.Set(r.Context(), profile); err != nil {
		h.logger.Error("save clinic profile", "error", err)
		respond.Internal(w)
		return
	}

	h.logger.Info("clinic profile updated", "name", profile.Name, "timezone", profile.Timezone)
	respond.JSON(w, http.StatusOK, profile)
}
