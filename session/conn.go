package session

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tatikspace/collab/pkg/logger"
	"github.com/tatikspace/collab/protocol"
)

const (
	// A dial that hasn't completed the handshake within this window is
	// treated as failed.
	openTimeout = 8 * time.Second
	// Keep-alive cadence; the server's read deadline tolerates two misses.
	pingInterval = 25 * time.Second
	writeTimeout = 10 * time.Second

	maxBackoff  = 30 * time.Second
	baseBackoff = time.Second
)

// backoffDelay is the reconnection policy's timing curve:
// min(30s, 1s * 2^attempt).
func backoffDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 1s << 5 already exceeds the cap; clamping early avoids shift overflow.
	if attempt > 5 {
		return maxBackoff
	}
	delay := baseBackoff << uint(attempt)
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// wsBackend owns the raw websocket lifecycle and the reconnection policy.
// Exactly three cancellable handles exist per session: the dial timeout,
// the keep-alive ticker, and the single pending reconnect timer; close()
// is the one teardown path that cancels them all.
type wsBackend struct {
	s *Session

	mu             sync.Mutex
	conn           *websocket.Conn
	isConnected    bool
	closed         bool
	attempts       int
	dialCancel     context.CancelFunc
	pingStop       chan struct{}
	reconnectTimer *time.Timer

	// gorilla/websocket allows one concurrent writer per connection.
	writeMu sync.Mutex
}

func newWSBackend(s *Session) *wsBackend {
	return &wsBackend{s: s}
}

// collabURL derives the endpoint from the serving origin: the ws scheme
// mirrors the http scheme, the path is fixed, the auth token rides the
// query string.
func collabURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/collaboration"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// open starts dialing in the background; the caller never awaits the
// handshake.
func (b *wsBackend) open() {
	go b.dial()
}

// dial runs one connection attempt. A connection that already exists is
// closed first so at most one is ever active.
func (b *wsBackend) dial() {
	endpoint, err := collabURL(b.s.cfg.BaseURL, b.s.cfg.Token)
	if err != nil {
		b.s.apply(event{kind: evErrored, err: "Invalid collaboration URL"})
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
		b.isConnected = false
	}
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	b.dialCancel = cancel
	b.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)

	b.mu.Lock()
	b.dialCancel = nil
	b.mu.Unlock()
	cancel()

	if err != nil {
		reason := "Connection failed: " + err.Error()
		if ctx.Err() == context.DeadlineExceeded {
			reason = "Connection timeout"
		}
		logger.Sugar.Warnf("Collaboration dial failed: %v", err)
		b.s.apply(event{kind: evErrored, err: reason})
		b.scheduleReconnect()
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.conn = conn
	b.isConnected = true
	b.attempts = 0 // successful open resets the backoff curve
	b.mu.Unlock()

	b.s.apply(event{kind: evOpened})
	b.send(protocol.Join(b.s.cfg.ProjectID, b.s.cfg.UserID, b.s.cfg.UserName))
	b.startPing()
	go b.readLoop(conn)
}

func (b *wsBackend) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		b.handleFrame(raw)
	}

	b.mu.Lock()
	wasClosed := b.closed
	if b.conn == conn {
		b.conn = nil
		b.isConnected = false
	}
	b.stopPingLocked()
	b.mu.Unlock()

	if wasClosed {
		return
	}
	b.s.apply(event{kind: evClosed})
	b.scheduleReconnect()
}

// handleFrame translates one inbound frame into a state event. Malformed
// payloads are logged and dropped; unknown types are ignored. Neither ever
// closes the connection.
func (b *wsBackend) handleFrame(raw []byte) {
	in, err := protocol.DecodeInbound(raw)
	if err != nil {
		logger.Sugar.Warnf("Dropping malformed collaboration frame: %v", err)
		return
	}

	switch in.Type {
	case protocol.TypeProject:
		if in.Project != nil {
			b.s.apply(event{kind: evProject, project: in.Project})
		}
	case protocol.TypeMessage:
		b.s.apply(event{kind: evMessage, message: in.Message})
	case protocol.TypeSystem:
		b.s.apply(event{kind: evMessage, message: in.Message})
	case protocol.TypeOnline:
		b.s.apply(event{kind: evOnline, userIDs: in.UserIDs})
	case protocol.TypeError:
		b.s.apply(event{kind: evServerError, err: in.Error})
	default:
		logger.Sugar.Debugf("Ignoring collaboration frame with unknown type %q", in.Type)
	}
}

func (b *wsBackend) startPing() {
	stop := make(chan struct{})
	b.mu.Lock()
	b.stopPingLocked()
	b.pingStop = stop
	b.mu.Unlock()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !b.send(protocol.Ping()) {
					return
				}
			}
		}
	}()
}

func (b *wsBackend) stopPingLocked() {
	if b.pingStop != nil {
		close(b.pingStop)
		b.pingStop = nil
	}
}

// scheduleReconnect arms exactly one pending attempt per close event. The
// attempt counter grows on every scheduled retry and only a successful open
// resets it, so consecutive failures walk the backoff curve 1s, 2s, 4s, ...
// capped at 30s. Attempts are unlimited: the session favors availability
// over a give-up state.
func (b *wsBackend) scheduleReconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.reconnectTimer != nil {
		return
	}

	delay := backoffDelay(b.attempts)
	b.attempts++
	b.reconnectTimer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		b.reconnectTimer = nil
		stale := b.closed
		b.mu.Unlock()
		if stale {
			return
		}
		b.s.apply(event{kind: evReconnecting})
		b.dial()
	})
}

func (b *wsBackend) connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isConnected
}

func (b *wsBackend) send(out protocol.Outbound) bool {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return false
	}

	data, err := json.Marshal(out)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling outbound frame: %v", err)
		return false
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.Sugar.Warnf("Collaboration send failed: %v", err)
		return false
	}
	return true
}

// close is idempotent and safe in any state: it cancels the dial timeout,
// the keep-alive ticker, and the pending reconnect timer, then closes the
// connection if one is open.
func (b *wsBackend) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.dialCancel != nil {
		b.dialCancel()
		b.dialCancel = nil
	}
	if b.reconnectTimer != nil {
		b.reconnectTimer.Stop()
		b.reconnectTimer = nil
	}
	b.stopPingLocked()
	conn := b.conn
	b.conn = nil
	b.isConnected = false
	b.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
