// Package liveclient implements the live watcher ports over the HTTP API.
package liveclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/app/live"
	"github.com/campscout/event-logistics-api/internal/domain"
)

// Config is shared by SSESubscriber and HTTPPoller.
type Config struct {
	BaseURL string
	Token   string

	// HTTPClient must not carry a Timeout when used for streaming; streams end
	// with their context. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	Logger     *zap.Logger

	// IdleTimeout ends a live stream that delivers no line, not even a keepalive
	// comment, for this long. Zero uses DefaultIdleTimeout; negative disables it.
	IdleTimeout time.Duration
}

// DefaultIdleTimeout is a little over twice the server's default keepalive.
const DefaultIdleTimeout = 60 * time.Second

type conn struct {
	base   *url.URL
	token  string
	client *http.Client
	log    *zap.Logger
	idle   time.Duration
}

func newConn(cfg Config) (conn, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return conn{}, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return conn{}, fmt.Errorf("base url %q: scheme must be http or https", cfg.BaseURL)
	}
	c := conn{base: base, token: cfg.Token, client: cfg.HTTPClient, log: cfg.Logger, idle: cfg.IdleTimeout}
	if c.idle == 0 {
		c.idle = DefaultIdleTimeout
	}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c conn) newRequest(ctx context.Context, path string) (*http.Request, error) {
	u := *c.base
	u.Path = c.base.Path + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// changeDTO is the JSON body of an event.changed message and of the revision
// fields of GET /events/{eventId}.
type changeDTO struct {
	EventID   string    `json:"eventId"`
	ID        string    `json:"id"`
	Revision  int64     `json:"revision"`
	At        time.Time `json:"at"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d changeDTO) toDomain(fallback domain.EventID) domain.EventChanged {
	id := domain.EventID(d.EventID)
	if id == "" {
		id = domain.EventID(d.ID)
	}
	if id == "" {
		id = fallback
	}
	at := d.At
	if at.IsZero() {
		at = d.UpdatedAt
	}
	return domain.EventChanged{EventID: id, Revision: d.Revision, At: at}
}

// HTTPPoller reads the event's current revision with GET /events/{eventId}.
type HTTPPoller struct {
	conn
}

var _ live.Poller = (*HTTPPoller)(nil)

func NewHTTPPoller(cfg Config) (*HTTPPoller, error) {
	c, err := newConn(cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPPoller{conn: c}, nil
}

func (p *HTTPPoller) Poll(ctx context.Context, id domain.EventID) (domain.EventChanged, error) {
	req, err := p.newRequest(ctx, "/events/"+url.PathEscape(string(id)))
	if err != nil {
		return domain.EventChanged{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.EventChanged{}, fmt.Errorf("poll event %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return domain.EventChanged{}, fmt.Errorf("poll event %s: unexpected status %d", id, resp.StatusCode)
	}

	var dto changeDTO
	if err := json.NewDecoder(resp.Body).Decode(&dto); err != nil {
		return domain.EventChanged{}, fmt.Errorf("decode event %s: %w", id, err)
	}
	return dto.toDomain(id), nil
}
