package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	memclock "github.com/campscout/event-logistics-api/internal/adapters/memory/clock"
	"github.com/campscout/event-logistics-api/internal/platform/auth/jwks_testutil"
	"github.com/campscout/event-logistics-api/internal/platform/auth/jwtverifier"
	"github.com/campscout/event-logistics-api/internal/platform/config"
)

func newTestAuthRouter(t *testing.T) (http.Handler, func(now time.Time) string) {
	t.Helper()

	jwksSrv, setKeys, _ := jwks_testutil.NewRotatingJWKSServer()
	t.Cleanup(jwksSrv.Close)

	kp, err := jwks_testutil.GenerateRSAKeypair("kid-1")
	if err != nil {
		t.Fatalf("GenerateRSAKeypair: %v", err)
	}
	setKeys([]jwks_testutil.Keypair{kp})

	cfg := config.JWTConfig{
		Issuer:                 "test-iss",
		Audience:               "test-aud",
		JWKSURL:                jwksSrv.URL,
		JWKSRefreshInterval:    10 * time.Minute,
		JWKSMinRefreshInterval: 0,
		HTTPTimeout:            2 * time.Second,
	}
	v := jwtverifier.NewWithOptions(cfg, nil, memclock.NewManualClock(time.Unix(1700000000, 0)))

	mint := func(now time.Time) string {
		jwt, err := jwks_testutil.MintRS256JWT(kp, cfg.Issuer, cfg.Audience, "leader-123", now, 5*time.Minute, nil)
		if err != nil {
			t.Fatalf("MintRS256JWT: %v", err)
		}
		return jwt
	}

	h, _ := newTestRouter(t, RouterOptions{AuthMiddleware: NewAuthMiddleware(v)})
	return h, mint
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	t.Parallel()

	h, _ := newTestAuthRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("code: got %q", er.Error.Code)
	}
	if rid, err := er.Error.RequestID.Get(); err != nil || rid == "" {
		t.Fatalf("expected requestId to be a non-empty string")
	}
}

func TestAuthMiddleware_RejectsBadCredentials(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthRouter(t)
	for name, authz := range map[string]string{
		"basic scheme":  "Basic abc",
		"empty bearer":  "Bearer   ",
		"garbage token": "Bearer not-a-jwt",
		"expired":       "Bearer " + mint(time.Unix(1700000000, 0).Add(-time.Hour)),
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/events", nil)
			req.Header.Set("Authorization", authz)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestAuthMiddleware_ValidToken_SetsSubject(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthRouter(t)
	authz := "Bearer " + mint(time.Unix(1700000000, 0))

	rec := doJSON(t, h, http.MethodPost, "/events", map[string]any{"title": "Camp"}, func(r *http.Request) {
		r.Header.Set("Authorization", authz)
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d want %d body=%s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	got := decode[EventDetails](t, rec)
	if got.CreatedBy != "leader-123" {
		t.Fatalf("createdBy=%q", got.CreatedBy)
	}
}

func TestAuthMiddleware_HealthzIsOpen(t *testing.T) {
	t.Parallel()

	h, _ := newTestAuthRouter(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t, RouterOptions{AuthMiddleware: NewDevAuthMiddleware("")})

	rec := doJSON(t, h, http.MethodGet, "/events", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("without subject: got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/events", map[string]any{"title": "Camp"}, func(r *http.Request) {
		r.Header.Set("X-Debug-Subject", "dev|alice")
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("with subject: got %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode[EventDetails](t, rec); got.CreatedBy != "dev|alice" {
		t.Fatalf("createdBy=%q", got.CreatedBy)
	}
}
