package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = 15 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 128
)

var errSendBackpressure = errors.New("signaling: session send buffer full")

// authState is a session's position in the spec's authentication state
// machine (spec §4.5):
//
//	[new] --authenticate/OK--> [pending] --admin-authorize--> [active]
//	 |                              \--admin-reject---------> [closed]
//	 +----adminAuthenticate/OK----> [active(admin)]
//	 any --disconnect--> [closed]
type authState string

const (
	stateNew     authState = "new"
	statePending authState = "pending"
	stateActive  authState = "active"
	stateClosed  authState = "closed"
)

// session is one signaling connection: a session handle, the client it has
// authenticated as (once past stateNew/statePending), and a serial request
// dispatcher so requests from this connection are answered in arrival
// order (spec §5: "per-session request-order processing").
type session struct {
	handle string
	conn   *websocket.Conn
	hub    *Hub
	logger zerolog.Logger

	send      chan []byte
	closeOnce sync.Once

	mu       sync.Mutex
	state    authState
	clientID string
	admin    bool

	cancel context.CancelFunc
}

func newSession(conn *websocket.Conn, hub *Hub, logger zerolog.Logger) *session {
	return &session{
		handle: uuid.NewString(),
		conn:   conn,
		hub:    hub,
		logger: logger,
		send:   make(chan []byte, sendBuffer),
		state:  stateNew,
	}
}

func (s *session) snapshot() (authState, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.clientID, s.admin
}

func (s *session) activate(clientID string, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientID = clientID
	s.admin = admin
	s.state = stateActive
}

func (s *session) markPending(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientID = clientID
	s.state = statePending
}

func (s *session) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
}

// enqueue serializes v and queues it without blocking; a full buffer means
// the peer is not draining, and is treated as a dead connection.
func (s *session) enqueue(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case s.send <- data:
		return nil
	default:
		return errSendBackpressure
	}
}

func (s *session) sendEvent(event string, payload interface{}) {
	if err := s.enqueue(Envelope{Event: event, Payload: mustMarshal(payload)}); err != nil {
		s.logger.Debug().Err(err).Str("event", event).Msg("dropping session, send buffer full")
		s.hub.dropSession(s)
	}
}

func (s *session) respondOK(id uint64, result interface{}) {
	ok := true
	_ = s.enqueue(Envelope{ID: &id, Ok: &ok, Result: mustMarshal(result)})
}

func (s *session) respondErr(id uint64, err error) {
	ok := false
	_ = s.enqueue(Envelope{
		ID:    &id,
		Ok:    &ok,
		Error: &WireError{Kind: string(apierr.KindOf(err)), Message: apierr.SafeMessage(err)},
	})
}

// startWritePump drains s.send to the socket and sends periodic pings,
// adapted from the teacher's peerConn.startWritePump.
func (s *session) startWritePump() {
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer func() {
			ticker.Stop()
			_ = s.conn.Close()
		}()
		for {
			select {
			case data, ok := <-s.send:
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			case <-ticker.C:
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.send)
	})
}

// readLoop owns the connection's read side. It decodes one Envelope per
// message and dispatches it through the Hub serially — a new request from
// the same session is not read off the socket until the previous one's
// handler has returned, which is what gives the per-session ordering
// guarantee its simplest possible implementation (spec §5).
func (s *session) readLoop() {
	defer func() {
		s.markClosed()
		s.hub.removeSession(s)
		s.close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" || env.ID == nil {
			continue // malformed frame or a response/event misdirected at us; drop silently
		}
		s.hub.dispatch(s, env)
	}
}
