package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/api/respond"
	"github.com/wolfman30/vetclinic-platform/internal/directory"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

// RecordStore is the record surface the HTTP layer needs.
type RecordStore interface {
	CreateRecord(ctx context.Context, r *Record) error
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// RuleStore is the escalation-rule admin surface.
type RuleStore interface {
	ListAllRules(ctx context.Context) ([]EscalationRule, error)
	CreateRule(ctx context.Context, r *EscalationRule) error
	UpdateRule(ctx context.Context, r *EscalationRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error
}

// Handler exposes the reminder confirmation endpoint plus the staff surface:
// manual scan/tick triggers, generic record creation, and rule administration.
type Handler struct {
	scanner  *Scanner
	engine   *Engine
	records  RecordStore
	rules    RuleStore
	resolver RecipientResolver
	logger   *logging.Logger
	now      func() time.Time
}

// NewHandler creates the reminders HTTP handler.
func NewHandler(scanner *Scanner, engine *Engine, records RecordStore, rules RuleStore, resolver RecipientResolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		scanner:  scanner,
		engine:   engine,
		records:  records,
		rules:    rules,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes mounts the public confirmation endpoint. Confirmation links
// and reply webhooks land here.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/reminders/{id}/confirm", h.confirmRecord)
}

// RegisterAdminRoutes mounts the staff endpoints.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/reminders/scan", h.scan)
	r.Post("/reminders", h.createRecord)
	r.Post("/escalations/tick", h.tick)
	r.Route("/escalation-rules", func(r chi.Router) {
		r.Get("/", h.listRules)
		r.Post("/", h.createRule)
		r.Put("/{id}", h.updateRule)
		r.Delete("/{id}", h.deleteRule)
	})
}

func (h *Handler) confirmRecord(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "id must be a uuid")
		return
	}

	confirmed, err := h.records.Confirm(r.Context(), id, h.now().UTC())
	if err != nil {
		h.logger.Error("reminder confirm failed", "reminder_id", id, "error", err)
		respond.Internal(w)
		return
	}
	if !confirmed {
		// Already confirmed is an idempotent success; only a missing record
		// is an error.
		if _, err := h.records.GetRecord(r.Context(), id); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				respond.Error(w, http.StatusNotFound, respond.KindNotFound, "reminder not found")
				return
			}
			h.logger.Error("reminder lookup failed", "reminder_id", id, "error", err)
			respond.Internal(w)
			return
		}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"id": id, "confirmed": true})
}

type scanRequest struct {
	LeadHours int `json:"lead_hours"`
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}

	summary, err := h.scanner.Scan(r.Context(), req.LeadHours)
	if err != nil {
		h.logger.Error("reminder scan failed", "error", err)
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

func (h *Handler) tick(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Tick(r.Context())
	if err != nil {
		h.logger.Error("escalation tick failed", "error", err)
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

type createRecordRequest struct {
	Type         ReminderType      `json:"reminder_type"`
	TargetKind   string            `json:"target_kind"`
	TargetID     uuid.UUID         `json:"target_id"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	Message      string            `json:"message"`
	Metadata     map[string]string `json:"metadata"`
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	var req createRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}
	if !ValidReminderType(req.Type) {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "unknown reminder_type")
		return
	}
	if req.TargetID == uuid.Nil || req.ScheduledFor.IsZero() {
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "target_id and scheduled_for are required")
		return
	}

	// Resolving up front rejects unknown kinds and dangling targets before a
	// record that can never be delivered is written.
	if _, err := h.resolver.ResolveRecipient(r.Context(), req.TargetKind, req.TargetID); err != nil {
		switch {
		case errors.Is(err, directory.ErrUnknownKind):
			respond.Error(w, http.StatusUnprocessableEntity, respond.KindValidation, "unknown target_kind")
		case errors.Is(err, directory.ErrOwnerNotFound):
			respond.Error(w, http.StatusNotFound, respond.KindNotFound, "target not found")
		default:
			h.logger.Error("target resolution failed", "target_kind", req.TargetKind, "target_id", req.TargetID, "error", err)
			respond.Internal(w)
		}
		return
	}

	rec := &Record{
		Type:         req.Type,
		TargetKind:   req.TargetKind,
		TargetID:     req.TargetID,
		ScheduledFor: req.ScheduledFor,
		Message:      req.Message,
		Metadata:     req.Metadata,
	}
	if err := h.records.CreateRecord(r.Context(), rec); err != nil {
		h.logger.Error("reminder record creation failed", "error", err)
		respond.Internal(w)
		return
	}
	respond.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.ListAllRules(r.Context())
	if err != nil {
		h.logger.Error("escalation rules list failed", "error", err)
		respond.Internal(w)
		return
	}
	if rules == nil {
		rules = []EscalationRule{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

type ruleRequest struct {
	Type      ReminderType `json:"reminder_type"`
	Step      int          `json:"step"`
	Channel   string       `json:"channel"`
	WaitHours int          `json:"wait_hours"`
	Active    *bool        `json:"active"`
}

func (req *ruleRequest) toRule() *EscalationRule {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &EscalationRule{
		Type:      req.Type,
		Step:      req.Step,
		Channel:   req.Channel,
		WaitHours: req.WaitHours,
		Active:    active,
	}
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}

	rule := req.toRule()
	if err := h.rules.CreateRule(r.Context(), rule); err != nil {
		h.writeRuleError(w, "create rule", err)
		return
	}
	respond.JSON(w, http.StatusCreated, rule)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "id must be a uuid")
		return
	}
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "invalid request body")
		return
	}

	rule := req.toRule()
	rule.ID = id
	if err := h.rules.UpdateRule(r.Context(), rule); err != nil {
		h.writeRuleError(w, "update rule", err)
		return
	}
	respond.JSON(w, http.StatusOK, rule)
}

func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.KindValidation, "id must be a uuid")
		return
	}
	if err := h.rules.DeleteRule(r.Context(), id); err != nil {
		h.writeRuleError(w, "delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeRuleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrRuleConflict):
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindConfiguration, ErrRuleConflict.Error())
	case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidStep),
		errors.Is(err, ErrInvalidWait), errors.Is(err, ErrInvalidChannel):
		respond.Error(w, http.StatusUnprocessableEntity, respond.KindConfiguration, err.Error())
	case errors.Is(err, ErrRuleNotFound):
		respond.Error(w, http.StatusNotFound, respond.KindNotFound, ErrRuleNotFound.Error())
	default:
		h.logger.Error("escalation rule operation failed", "op", op, "error", err)
		respond.Internal(w)
	}
}
