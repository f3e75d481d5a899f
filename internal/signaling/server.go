package signaling

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/intercom-router/internal/admission"
	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/channel"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/observability"
	"github.com/concord-chat/intercom-router/internal/routing"
	"github.com/concord-chat/intercom-router/internal/security"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DefaultHandlerTimeout is the default per-request handler deadline
// (spec §5: "every request has a default 10s handler timeout").
const DefaultHandlerTimeout = 10 * time.Second

// Hub is the top-level signaling server: one websocket endpoint fanning
// out to every authenticated session, wired to the shared registries, the
// Media Worker, and the Audio Routing Core. It is the module's equivalent
// of the teacher's network/signaling.Server, generalized from a channel-
// keyed peer map to a request/response + event bus over per-client
// sessions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session // by clientID, covers both pending and active

	admission *admission.Controller
	channels  *channel.Registry
	clients   *client.Registry
	worker    *mediaworker.Worker
	routing   *routing.Table
	tokens    *TokenManager
	metrics   *observability.Metrics
	logger    zerolog.Logger

	validator *security.Validator
	sanitizer *security.Sanitizer

	handlerTimeout time.Duration
}

// NewHub wires a Hub to its collaborators.
func NewHub(adm *admission.Controller, channels *channel.Registry, clients *client.Registry, worker *mediaworker.Worker, table *routing.Table, tokens *TokenManager, metrics *observability.Metrics, logger zerolog.Logger) *Hub {
	return &Hub{
		sessions:       make(map[string]*session),
		admission:      adm,
		channels:       channels,
		clients:        clients,
		worker:         worker,
		routing:        table,
		tokens:         tokens,
		metrics:        metrics,
		logger:         logger.With().Str("component", "signaling").Logger(),
		validator:      security.NewValidator(),
		sanitizer:      security.NewSanitizer(),
		handlerTimeout: DefaultHandlerTimeout,
	}
}

// Handler returns the http.HandlerFunc that upgrades to a websocket and
// runs the session's read loop.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		s := newSession(conn, h, h.logger)
		s.startWritePump()
		if h.metrics != nil {
			h.metrics.SessionsActive.Inc()
		}
		s.readLoop()
	}
}

func (h *Hub) registerSession(clientID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[clientID] = s
}

// removeSession runs the disconnect cascade (spec §4.8): close every
// transport/producer/consumer the session's client owned, drop it from
// every channel's member set, and notify remaining members.
func (h *Hub) removeSession(s *session) {
	if h.metrics != nil {
		h.metrics.SessionsActive.Dec()
	}
	_, clientID, _ := s.snapshot()
	if clientID == "" {
		return
	}

	h.mu.Lock()
	if h.sessions[clientID] == s {
		delete(h.sessions, clientID)
	}
	h.mu.Unlock()

	snap, err := h.clients.Get(clientID)
	if err != nil {
		return
	}
	if snap.Status == client.StatusPending {
		_ = h.clients.Reject(clientID)
		return
	}

	for _, closure := range h.routing.ReconcileAllOwnedBy(clientID) {
		h.fanOutProducerClosed(closure)
	}
	_ = h.clients.Close(clientID)
	for _, chID := range snap.Channels {
		_ = h.channels.RemoveMember(chID, clientID)
		h.broadcastToChannel(chID, EventClientLeftChannel, clientLeftPayload{ChannelID: chID, ClientID: clientID})
	}
}

// dropSession is called when a session's send buffer is full — treated as
// a dead peer, same cascade as a clean disconnect.
func (h *Hub) dropSession(s *session) {
	s.close()
}

func (h *Hub) sendToClient(clientID, event string, payload interface{}) {
	h.mu.RLock()
	s, ok := h.sessions[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	s.sendEvent(event, payload)
}

func (h *Hub) sendToAdmins(event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		if _, _, admin := s.snapshot(); admin {
			s.sendEvent(event, payload)
		}
	}
}

// broadcastToChannel emits event to every member of channelID (spec §4.5:
// "a client receives an event for channel C only if it is a member of C").
// clientSpeaking/clientStoppedSpeaking go through
// broadcastToChannelWithListenRight instead, which additionally requires
// listen right.
func (h *Hub) broadcastToChannel(channelID, event string, payload interface{}) {
	members := h.channels.MembersOf(channelID)
	sort.Strings(members)
	for _, clientID := range members {
		h.sendToClient(clientID, event, payload)
	}
}

func (h *Hub) broadcastToChannelWithListenRight(channelID, event string, payload interface{}) {
	members := h.channels.MembersOf(channelID)
	sort.Strings(members)
	for _, clientID := range members {
		snap, err := h.clients.Get(clientID)
		if err != nil {
			continue
		}
		if !permissionAllowListen(snap, channelID) {
			continue
		}
		h.sendToClient(clientID, event, payload)
	}
}

func (h *Hub) fanOutProducerClosed(closure routing.ProducerClosure) {
	for _, subscriberID := range closure.Subscribers {
		h.sendToClient(subscriberID, EventProducerClosed, producerClosedPayload{ProducerID: closure.ProducerID})
	}
}

// dispatch runs one request to completion and writes its response. It is
// called synchronously from the session's single readLoop goroutine, which
// is what gives per-session requests their arrival-order guarantee.
func (h *Hub) dispatch(s *session, env Envelope) {
	id := *env.ID
	result := make(chan struct {
		payload interface{}
		err     error
	}, 1)

	go func() {
		payload, err := h.route(s, env.Event, env.Payload)
		result <- struct {
			payload interface{}
			err     error
		}{payload, err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			s.respondErr(id, r.err)
			return
		}
		s.respondOK(id, r.payload)
	case <-time.After(h.handlerTimeout):
		s.respondErr(id, apierr.New(apierr.Timeout, "request exceeded handler deadline"))
	}
}

// route enforces the auth state machine (spec §4.5) and dispatches to the
// per-event handler.
func (h *Hub) route(s *session, event string, payload []byte) (interface{}, error) {
	state, _, _ := s.snapshot()

	switch event {
	case EventAuthenticate:
		return h.handleAuthenticate(s, payload)
	case EventAdminAuthenticate:
		return h.handleAdminAuthenticate(s, payload)
	}

	if state != stateActive {
		return nil, apierr.New(apierr.Unauthorized, "request not allowed before authentication completes")
	}

	switch event {
	case EventGetRTPCaps:
		return h.handleGetRTPCapabilities(s, payload)
	case EventCreateTransport:
		return h.handleCreateTransport(s, payload)
	case EventConnectTransport:
		return h.handleConnectTransport(s, payload)
	case EventProduce:
		return h.handleProduce(s, payload)
	case EventConsume:
		return h.handleConsume(s, payload)
	case EventStartSpeaking:
		return h.handleSpeaking(s, payload, true)
	case EventStopSpeaking:
		return h.handleSpeaking(s, payload, false)
	case EventSetChannelMute:
		return h.handleSetChannelMute(s, payload)
	case EventSetChannelVolume:
		return h.handleSetChannelVolume(s, payload)
	case EventCreateChannel:
		return h.handleCreateChannel(s, payload)
	case EventUpdateChannel:
		return h.handleUpdateChannel(s, payload)
	case EventDeleteChannel:
		return h.handleDeleteChannel(s, payload)
	case EventAuthorizePending:
		return h.handleAuthorizePending(s, payload)
	case EventRejectPending:
		return h.handleRejectPending(s, payload)
	case EventUpdatePermissions:
		return h.handleUpdatePermissions(s, payload)
	default:
		return nil, apierr.Newf(apierr.BadRequest, "unknown request %q", event)
	}
}

func permissionAllowListen(snap client.Snapshot, channelID string) bool {
	isMember := false
	for _, chID := range snap.Channels {
		if chID == channelID {
			isMember = true
			break
		}
	}
	if !isMember {
		return false
	}
	return snap.Permissions.ListenToAll || snap.Permissions.ListenTo[channelID]
}

// StartSpeakingObserver runs for the Hub's lifetime, translating Media
// Worker volume samples into clientSpeaking/clientStoppedSpeaking fan-out
// (spec §4.7). cmd/intercom-server launches it once at startup.
func (h *Hub) StartSpeakingObserver(ctx context.Context, thresholdDBFS float64, interval, holdOff time.Duration) <-chan mediaworker.SpeakingEvent {
	events := h.worker.ObserveSpeakingProducers(ctx, thresholdDBFS, interval, holdOff)
	go func() {
		for ev := range events {
			ownerID, channelIDs, ok := h.routing.ProducerOwner(ev.ProducerID)
			if !ok {
				continue
			}
			eventName := EventClientSpeaking
			if ev.Silence {
				eventName = EventClientStopSpeaking
			}
			if h.metrics != nil {
				metricName := "speaking"
				if ev.Silence {
					metricName = "stopped_speaking"
				}
				h.metrics.SpeakingEventsTotal.WithLabelValues(metricName).Inc()
			}
			for _, chID := range channelIDs {
				h.broadcastToChannelWithListenRight(chID, eventName, clientSpeakingPayload{ClientID: ownerID, ChannelID: chID})
			}
		}
	}()
	return events
}
