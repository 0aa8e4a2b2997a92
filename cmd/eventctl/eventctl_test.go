package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campscout/event-logistics-api/internal/adapters/httpapi"
	"github.com/campscout/event-logistics-api/internal/platform/auth/jwtverifier"
	"github.com/campscout/event-logistics-api/internal/platform/config"
)

const yamlPlan = `
detached_leaders: 2
guests: -3
segments:
  - branch: LC
    start_date: 2026-07-01
    end_date: 2026-07-05
    youth_count: 20
    leaders_count: 4
    kambusieri_count: 2
    accommodation: casa
  - branch: rover
    start_date: 2026-07-04
    end_date: 2026-07-06
    youth_count: "12"
    leaders_count: 2
    kambusieri_count: 5
    accommodation: tende
`

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSummary_TextFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlPlan), 0o600))

	out, err := runCLI(t, "", "summary", path)
	require.NoError(t, err)
	assert.Contains(t, out, "peak")
	assert.Contains(t, out, "40")
	assert.Contains(t, out, "2026-07-04..2026-07-05")
	assert.Regexp(t, `indoor beds\s+26`, out)
	assert.Regexp(t, `tent places\s+14`, out)
	assert.Regexp(t, `total\s+42`, out)
}

func TestSummary_JSONFromStdin(t *testing.T) {
	t.Parallel()

	out, err := runCLI(t, yamlPlan, "summary", "-", "--json")
	require.NoError(t, err)

	var got httpapi.LogisticsSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 40, got.Peak.People)
	assert.Equal(t, 0, got.Totals.ByBranch["RS"].Kambusieri)
	assert.Equal(t, 0, got.Totals.Guests, "negative extras are clamped")
	assert.Equal(t, 20+2+4+12+2+2, got.Totals.Total)
}

func TestSummary_AcceptsJSONPlan(t *testing.T) {
	t.Parallel()

	plan := `{"guests": 1, "segments": [{"branch": "EG", "start_date": "2026-08-01", "end_date": "2026-08-02", "youth_count": "7", "leaders_count": 1}]}`
	out, err := runCLI(t, plan, "summary", "-", "--json")
	require.NoError(t, err)

	var got httpapi.LogisticsSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 8, got.Peak.People)
	assert.Equal(t, 9, got.Totals.Total)
}

func TestSummary_Errors(t *testing.T) {
	t.Parallel()

	_, err := runCLI(t, "", "summary", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read plan")

	_, err = runCLI(t, "segments: [", "summary", "-")
	assert.ErrorContains(t, err, "parse plan")

	_, err = runCLI(t, "", "summary")
	assert.Error(t, err)
}

func TestDevJWT_TokensVerify(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	iss := &devIssuer{
		key:      key,
		kid:      "dev-kid-1",
		issuer:   "http://devjwt.test",
		audience: "event-logistics",
		ttl:      time.Minute,
		now:      func() time.Time { return now },
	}
	srv := httptest.NewServer(iss.routes())
	t.Cleanup(srv.Close)

	resp, err := srv.Client().Get(srv.URL + "/token?sub=dev|alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
		Sub   string `json:"sub"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "dev|alice", body.Sub)

	v := jwtverifier.NewWithOptions(config.JWTConfig{
		Issuer:              iss.issuer,
		Audience:            iss.audience,
		JWKSURL:             srv.URL + "/.well-known/jwks.json",
		JWKSRefreshInterval: time.Hour,
		HTTPTimeout:         2 * time.Second,
	}, srv.Client(), fixedClock{now})
	sub, err := v.Verify(context.Background(), body.Token)
	require.NoError(t, err)
	assert.Equal(t, "dev|alice", sub)

	resp, err = srv.Client().Get(srv.URL + "/token")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
