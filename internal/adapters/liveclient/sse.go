package liveclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/campscout/event-logistics-api/internal/app/live"
	"github.com/campscout/event-logistics-api/internal/domain"
)

// ChangedEvent is the SSE event name carrying change notifications.
const ChangedEvent = "event.changed"

// SSESubscriber opens GET /events/{eventId}/live as a server-sent event stream.
type SSESubscriber struct {
	conn
}

var _ live.Subscriber = (*SSESubscriber)(nil)

func NewSSESubscriber(cfg Config) (*SSESubscriber, error) {
	c, err := newConn(cfg)
	if err != nil {
		return nil, err
	}
	return &SSESubscriber{conn: c}, nil
}

// Subscribe returns once the server accepted the stream. The channel closes when
// the connection drops or ctx is done.
func (s *SSESubscriber) Subscribe(ctx context.Context, id domain.EventID) (<-chan domain.EventChanged, error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := s.newRequest(ctx, "/events/"+url.PathEscape(string(id))+"/live")
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect live stream %s: %w", id, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("connect live stream %s: unexpected status %d", id, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("connect live stream %s: unexpected content type %q", id, ct)
	}

	out := make(chan domain.EventChanged)
	go s.readLoop(ctx, cancel, id, resp.Body, out)
	return out, nil
}

// readLoop cancels the request when no line arrives within the idle timeout,
// which unblocks the body read and closes out.
func (s *SSESubscriber) readLoop(ctx context.Context, cancel context.CancelFunc, id domain.EventID, body io.ReadCloser, out chan<- domain.EventChanged) {
	defer close(out)
	defer body.Close()
	defer cancel()

	var stalled atomic.Bool
	if s.idle > 0 {
		idle := time.AfterFunc(s.idle, func() {
			stalled.Store(true)
			cancel()
		})
		defer idle.Stop()
		body = resetOnRead{ReadCloser: body, reset: func() { idle.Reset(s.idle) }}
	}

	scanner := bufio.NewScanner(body)
	var (
		eventType string
		data      bytes.Buffer
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if eventType == ChangedEvent && data.Len() > 0 {
				var dto changeDTO
				if err := json.Unmarshal(bytes.TrimSuffix(data.Bytes(), []byte("\n")), &dto); err != nil {
					s.log.Warn("malformed live event", zap.String("event_id", string(id)), zap.Error(err))
				} else {
					select {
					case out <- dto.toDomain(id):
					case <-ctx.Done():
						return
					}
				}
			}
			eventType = ""
			data.Reset()
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// Comment (keepalive).
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			data.WriteByte('\n')
		}
	}
	switch err := scanner.Err(); {
	case stalled.Load():
		s.log.Info("live stream idle, closing", zap.String("event_id", string(id)), zap.Duration("idle_timeout", s.idle))
	case err != nil && ctx.Err() == nil:
		s.log.Info("live stream closed", zap.String("event_id", string(id)), zap.Error(err))
	}
}

// resetOnRead calls reset whenever bytes arrive.
type resetOnRead struct {
	io.ReadCloser
	reset func()
}

func (r resetOnRead) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 {
		r.reset()
	}
	return n, err
}
