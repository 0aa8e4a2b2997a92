package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/domain"
	"github.com/campscout/event-logistics-api/internal/ports/out/idempotency"
)

const idempotencyHeader = "Idempotency-Key"

// hashBody fingerprints the decoded request plus any path parameters.
func hashBody(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// idempotent runs handle at most once per (subject, key, route, body).
//
//   - Replay if the same subject+key+route+bodyHash already produced a response
//   - Reject if the same subject+key+route was used with a different bodyHash (409)
//
// Requests without an Idempotency-Key header are not deduplicated. Only 2xx
// responses are stored.
func (s *Server) idempotent(w http.ResponseWriter, r *http.Request, route string, body any, handle func() (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	sub, _ := SubjectFromContext(r.Context())
	if key == "" || s.idem == nil {
		s.respond(w, r, handle)
		return
	}
	if len(key) > 255 {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid Idempotency-Key", map[string]any{idempotencyHeader: "must be at most 255 characters"})
		return
	}

	bodyHash, err := hashBody(body)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	ctx := r.Context()
	now := s.clock.Now().UTC()

	metaFP := idempotency.Fingerprint{
		Key:     idempotency.Key(key),
		Subject: domain.SubjectID(sub),
		Method:  r.Method,
		Route:   route,
	}
	meta, ok, err := s.idem.Get(ctx, metaFP)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if ok && !meta.Expired(now, s.idemTTL) {
		if string(meta.Body) != bodyHash {
			writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
			return
		}
	} else if err := s.idem.Put(ctx, metaFP, idempotency.Record{
		ContentType: "text/plain",
		Body:        []byte(bodyHash),
		CreatedAt:   now,
	}); err != nil {
		s.log.Warn("store idempotency key", zap.Error(err))
	}

	respFP := metaFP
	respFP.BodyHash = bodyHash
	if rec, ok, err := s.idem.Get(ctx, respFP); err != nil {
		s.writeAppError(w, r, err)
		return
	} else if ok && !rec.Expired(now, s.idemTTL) && rec.StatusCode >= 200 && rec.StatusCode < 300 {
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
		return
	}

	status, payload, err := handle()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if status >= 200 && status < 300 {
		if err := s.idem.Put(ctx, respFP, idempotency.Record{
			StatusCode:  status,
			ContentType: "application/json",
			Body:        buf.Bytes(),
			CreatedAt:   now,
		}); err != nil {
			s.log.Warn("store idempotent response", zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, handle func() (int, any, error)) {
	status, payload, err := handle()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}
