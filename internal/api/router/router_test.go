package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/vetclinic-platform/internal/followup"
	"github.com/wolfman30/vetclinic-platform/internal/reminders"
	"github.com/wolfman30/vetclinic-platform/pkg/logging"
)

type stubQueue struct {
	items []*followup.Item
}

func (s *stubQueue) ListOpen(ctx context.Context, reminderType string) ([]*followup.Item, error) {
	return s.items, nil
}

func (s *stubQueue) Acknowledge(ctx context.Context, id uuid.UUID, staff string) error {
	return nil
}

func (s *stubQueue) Resolve(ctx context.Context, id uuid.UUID, staff, note string) error {
	return nil
}

type stubRecords struct{}

func (stubRecords) CreateRecord(ctx context.Context, r *reminders.Record) error { return nil }

func (stubRecords) GetRecord(ctx context.Context, id uuid.UUID) (*reminders.Record, error) {
	return nil, reminders.ErrRecordNotFound
}

func (stubRecords) Confirm(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return true, nil
}

func testRouterLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func newTestRouter(t *testing.T, mutate func(cfg *Config)) http.Handler {
	t.Helper()

	logger := testRouterLogger()
	cfg := &Config{
		Logger:         logger,
		Reminders:      reminders.NewHandler(nil, nil, stubRecords{}, nil, nil, logger),
		Followups:      followup.NewHandler(&stubQueue{}, logger),
		AdminJWTSecret: "test-secret",
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func staffToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "front-desk",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestRouterReadyz(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterReadyzUnavailable(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.ReadyCheck = func(ctx context.Context) error {
			return errors.New("database unreachable")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rr.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode readiness response: %v", err)
	}
	if resp["status"] != "unavailable" {
		t.Errorf("expected status unavailable, got %q", resp["status"])
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterMetricsUnmountedWithoutHandler(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}

func TestRouterPublicConfirmRoute(t *testing.T) {
	router := newTestRouter(t, nil)

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reminders/"+id.String()+"/confirm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode confirm response: %v", err)
	}
	if !resp.Confirmed {
		t.Errorf("expected confirmed true")
	}
}

func TestRouterAdminRequiresToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/followups", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAdminWithToken(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/followups", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t, "test-secret"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode followups response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("expected empty queue, got count %d", resp.Count)
	}
}

// Admin routes stay mounted without a secret so misconfiguration surfaces as
// 401 instead of a confusing 404.
func TestRouterAdminWithoutSecret(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.AdminJWTSecret = ""
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/followups", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken(t, "test-secret"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterRateLimitOnPublicRoutes(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.RateLimitRPS = 0.001
		cfg.RateLimitBurst = 1
	})

	id := uuid.New()
	path := "/api/v1/reminders/" + id.String() + "/confirm"

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, path, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, path, nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, second.Code)
	}

	// The admin subtree is not rate limited; it still gets its usual 401.
	admin := httptest.NewRecorder()
	router.ServeHTTP(admin, httptest.NewRequest(http.MethodGet, "/api/v1/admin/followups", nil))
	if admin.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, admin.Code)
	}
}
