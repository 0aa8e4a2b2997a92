package idempotency

import (
	"context"
	"time"

	"github.com/campscout/event-logistics-api/internal/domain"
)

// Key is the caller-provided idempotency key (Idempotency-Key header).
type Key string

// Fingerprint identifies a request uniquely for idempotency purposes:
// key + route + subject + request body hash.
// Route is HTTP method + route pattern (e.g. "PUT /events/{eventId}/segments").
type Fingerprint struct {
	Key      Key
	Subject  domain.SubjectID
	Method   string
	Route    string
	BodyHash string
}

// Record is the stored response we can replay for a duplicate request.
type Record struct {
	StatusCode  int
	ContentType string
	Body        []byte
	CreatedAt   time.Time
}

// Expired reports whether the record is older than ttl at now. A non-positive ttl never expires.
func (r Record) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(r.CreatedAt) >= ttl
}

// Store persists idempotency records for replaying safe responses on retries.
type Store interface {
	Get(ctx context.Context, fp Fingerprint) (Record, bool, error)
	Put(ctx context.Context, fp Fingerprint, rec Record) error

	// DeleteCreatedBefore removes records created before cutoff and reports how many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
