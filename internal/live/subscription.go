// Package live subscribes to the comment service's push channel for new replies.
// A Subscription is a cancellable stream of typed events with explicit Close.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"commenthub/pkg/logger"
	"commenthub/pkg/models"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
	eventBuffer      = 64
	errorBuffer      = 8
)

// Event is a decoded live message. Reply is set for new_reply messages.
type Event struct {
	Type  string
	Reply *models.Comment
}

// Endpoint builds the subscription URL for commentID. host may carry a port;
// token is omitted when empty.
func Endpoint(host string, secure bool, commentID int64, token string) string {
	scheme := "ws"
	if secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   fmt.Sprintf("/ws/comments/%d/", commentID),
	}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}

// Dialer opens subscriptions
type Dialer struct {
	ws        websocket.Dialer
	userAgent string
}

// NewDialer returns a Dialer with the default handshake timeout
func NewDialer(userAgent string) *Dialer {
	return &Dialer{
		ws:        websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		userAgent: userAgent,
	}
}

// Subscription streams events from one live channel until Close is called or
// the connection ends
type Subscription struct {
	conn    *websocket.Conn
	channel string
	events  chan Event
	errs    chan error
	done    chan struct{}

	closeOnce sync.Once
	closing   chan struct{}
}

// Dial connects to endpoint and starts reading
func (d *Dialer) Dial(ctx context.Context, endpoint string) (*Subscription, error) {
	headers := make(map[string][]string)
	if d.userAgent != "" {
		headers["User-Agent"] = []string{d.userAgent}
	}

	conn, resp, err := d.ws.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			msg := fmt.Sprintf("live channel handshake failed (status=%d)", resp.StatusCode)
			if len(body) > 0 {
				msg = fmt.Sprintf("%s: %s", msg, strings.TrimSpace(string(body)))
			}
			if resp.StatusCode == 401 || resp.StatusCode == 403 {
				return nil, models.NewAuthError(models.ErrCodeUnauthorized, msg, err)
			}
			return nil, models.NewServerError(resp.StatusCode, msg)
		}
		return nil, models.NewNetworkError("live channel connection failed", err)
	}

	s := &Subscription{
		conn:    conn,
		channel: channelName(endpoint),
		events:  make(chan Event, eventBuffer),
		errs:    make(chan error, errorBuffer),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	logger.WebSocket(s.channel, "connected")
	go s.readLoop()
	return s, nil
}

// Events yields decoded messages in arrival order. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Errors yields failures that ended the connection. Malformed messages are
// logged and dropped, never reported here.
func (s *Subscription) Errors() <-chan error {
	return s.errs
}

// Done is closed once the read loop has exited
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has been called
func (s *Subscription) Closed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close ends the subscription and waits for the read loop. It is idempotent.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = s.conn.Close()
		<-s.done
		logger.WebSocket(s.channel, "closed")
	})
	if err != nil && !isExpectedCloseErr(err) {
		return err
	}
	return nil
}

func (s *Subscription) readLoop() {
	defer close(s.done)
	defer close(s.events)
	defer close(s.errs)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.reportReadError(err)
			return
		}

		ev, ok := decode(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.closing:
			return
		}
	}
}

func (s *Subscription) reportReadError(err error) {
	select {
	case <-s.closing:
		return
	default:
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == models.CloseUnauthorized {
		logger.WebSocket(s.channel, "rejected: authentication required")
		s.errs <- &models.AppError{
			Kind:    models.KindAuthentication,
			Code:    models.ErrCodeWebSocketClose,
			Message: "live channel requires authentication",
			Err:     err,
		}
		return
	}
	if isExpectedCloseErr(err) {
		logger.WebSocket(s.channel, "disconnected")
		return
	}
	logger.WithFields(map[string]interface{}{"channel": s.channel}).WithError(err).Warn("Live channel error")
	s.errs <- models.NewNetworkError("live channel read failed", err)
}

// decode parses one frame. Anything that is not a well-formed new_reply is
// dropped with a log line.
func decode(data []byte) (Event, bool) {
	var msg models.LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Warnf("Dropping malformed live message: %v", err)
		return Event{}, false
	}

	switch msg.Type {
	case models.LiveMessageNewReply:
		var reply models.Comment
		if len(msg.Data) == 0 {
			logger.Warn("Dropping new_reply without data")
			return Event{}, false
		}
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			logger.Warnf("Dropping new_reply with malformed data: %v", err)
			return Event{}, false
		}
		if reply.ID <= 0 || reply.ParentID == nil {
			logger.Warnf("Dropping new_reply %d without parent", reply.ID)
			return Event{}, false
		}
		return Event{Type: msg.Type, Reply: &reply}, true
	default:
		logger.Debugf("Ignoring live message of type %q", msg.Type)
		return Event{}, false
	}
}

func channelName(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.Path
}

func isExpectedCloseErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	)
}
