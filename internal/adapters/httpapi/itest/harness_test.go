package itest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/campscout/event-logistics-api/internal/adapters/httpapi"
	memclock "github.com/campscout/event-logistics-api/internal/adapters/memory/clock"
	memeventrepo "github.com/campscout/event-logistics-api/internal/adapters/memory/eventrepo"
	memidempotency "github.com/campscout/event-logistics-api/internal/adapters/memory/idempotency"
	pgeventrepo "github.com/campscout/event-logistics-api/internal/adapters/postgres/eventrepo"
	pgidempotency "github.com/campscout/event-logistics-api/internal/adapters/postgres/idempotency"
	postgres_testutil "github.com/campscout/event-logistics-api/internal/adapters/postgres/testutil"
	"github.com/campscout/event-logistics-api/internal/app/events"
	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/platform/pubsub"
	eventrepoport "github.com/campscout/event-logistics-api/internal/ports/out/eventrepo"
	idempotencyport "github.com/campscout/event-logistics-api/internal/ports/out/idempotency"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|postgres|all)")
		return nil
	}
}

type testServer struct {
	baseURL string
	client  *http.Client
	clock   *memclock.ManualClock
	changes *pubsub.Broker[domain.EventChanged]
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	const issuer = "itest-issuer"
	clk := memclock.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	var (
		eventRepo eventrepoport.Repository
		idemStore idempotencyport.Store
	)

	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		eventRepo = pgeventrepo.NewRepo(pool)
		idemStore = pgidempotency.NewStore(pool, issuer)
	case backendMemory:
		eventRepo = memeventrepo.NewRepo()
		idemStore = memidempotency.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	changes := pubsub.NewBroker[domain.EventChanged](pubsub.DefaultBuffer)
	svc := events.NewService(eventRepo, clk, changes, nil)
	api := httpapi.NewServer(svc, httpapi.ServerOptions{
		Idempotency:    idemStore,
		IdempotencyTTL: 24 * time.Hour,
		Changes:        changes,
		Clock:          clk,
	})

	// Integration tests use the dev auth middleware to stay fully local and deterministic.
	// The empty default subject makes X-Debug-Subject mandatory, allowing
	// auth-failure coverage.
	authMW := httpapi.NewDevAuthMiddleware("")
	handler := httpapi.NewRouterWithOptions(api, httpapi.RouterOptions{AuthMiddleware: authMW})

	srv := httptest.NewServer(handler)
	// Streams only end once the broker is closed.
	t.Cleanup(srv.Close)
	t.Cleanup(changes.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		clock:   clk,
		changes: changes,
	}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) doJSON(t *testing.T, method string, path string, subject string, body any, headers ...string) (int, []byte, http.Header) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.url(path), r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if subject != "" {
		req.Header.Set("X-Debug-Subject", subject)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, resp.Header
}

// subjectTransport adds the dev auth header to every outgoing request.
type subjectTransport struct {
	subject string
	next    http.RoundTripper
}

func (t subjectTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("X-Debug-Subject", t.subject)
	return t.next.RoundTrip(r)
}

func (s *testServer) clientAs(subject string) *http.Client {
	return &http.Client{Transport: subjectTransport{subject: subject, next: s.client.Transport}}
}

type errorResponse struct {
	Error struct {
		Code      string         `json:"code"`
		Message   string         `json:"message"`
		Details   map[string]any `json:"details"`
		RequestID string         `json:"requestId"`
	} `json:"error"`
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}

func requireStatus(t *testing.T, status int, body []byte, want int) {
	t.Helper()
	if status != want {
		t.Fatalf("status=%d want=%d body=%s", status, want, string(body))
	}
}

func requireErrorCode(t *testing.T, status int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	requireStatus(t, status, body, wantStatus)
	got := mustUnmarshal[errorResponse](t, body)
	if got.Error.Code != wantCode {
		t.Fatalf("error.code=%q want=%q body=%s", got.Error.Code, wantCode, string(body))
	}
	if got.Error.RequestID == "" {
		t.Fatalf("expected requestId in error body=%s", string(body))
	}
}

func requireHeaderPresent(t *testing.T, h http.Header, key string) {
	t.Helper()
	if strings.TrimSpace(h.Get(key)) == "" {
		t.Fatalf("expected header %q to be present", key)
	}
}
