package signaling

import (
	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/permission"
)

func (h *Hub) handleAuthenticate(s *session, raw []byte) (interface{}, error) {
	var p authenticatePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid authenticate payload")
	}
	snap, err := h.admission.Authenticate(p.DisplayName, s.handle, p.ServerSecret)
	if err != nil {
		return nil, err
	}
	s.markPending(snap.ID)
	h.registerSession(snap.ID, s)
	token, _, err := h.tokens.Issue(snap.ID, false)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "failed to issue session token")
	}
	h.sendToAdmins(EventPendingClient, pendingClientPayload{ClientID: snap.ID, DisplayName: snap.DisplayName})
	if h.metrics != nil {
		h.metrics.AdmissionAttempts.WithLabelValues("accepted_pending").Inc()
	}
	return authenticateResult{ClientID: snap.ID, SessionToken: token, Status: string(snap.Status), AdminFlag: snap.AdminFlag}, nil
}

func (h *Hub) handleAdminAuthenticate(s *session, raw []byte) (interface{}, error) {
	var p adminAuthenticatePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid adminAuthenticate payload")
	}
	snap, err := h.admission.AdminAuthenticate(p.DisplayName, s.handle, p.ServerSecret, p.AdminSecret)
	if err != nil {
		return nil, err
	}
	s.activate(snap.ID, true)
	h.registerSession(snap.ID, s)
	token, _, err := h.tokens.Issue(snap.ID, true)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, err, "failed to issue session token")
	}
	if h.metrics != nil {
		h.metrics.AdmissionAttempts.WithLabelValues("accepted_admin").Inc()
	}
	return authenticateResult{ClientID: snap.ID, SessionToken: token, Status: string(snap.Status), AdminFlag: true}, nil
}

func (h *Hub) handleGetRTPCapabilities(s *session, raw []byte) (interface{}, error) {
	return toWireCapabilities(h.worker.RTPCapabilities()), nil
}

func (h *Hub) handleCreateTransport(s *session, raw []byte) (interface{}, error) {
	var p createTransportPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid createTransport payload")
	}
	var dir mediaworker.Direction
	switch p.Direction {
	case "send":
		dir = mediaworker.Send
	case "receive":
		dir = mediaworker.Receive
	default:
		return nil, apierr.Newf(apierr.BadRequest, "direction must be \"send\" or \"receive\", got %q", p.Direction)
	}
	_, clientID, _ := s.snapshot()
	params, err := h.worker.CreateTransport(clientID, dir)
	if err != nil {
		return nil, err
	}
	if dir == mediaworker.Receive {
		h.routing.RegisterReceiveTransport(clientID, params.ID)
	}
	if h.metrics != nil {
		h.metrics.TransportsTotal.WithLabelValues(p.Direction).Inc()
	}
	return toWireTransportParams(params), nil
}

func (h *Hub) handleConnectTransport(s *session, raw []byte) (interface{}, error) {
	var p connectTransportPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid connectTransport payload")
	}
	err := h.worker.ConnectTransport(p.TransportID, fromWireDTLSParameters(p.DTLSParameters), fromWireICEParameters(p.ICEParameters), fromWireICECandidates(p.ICECandidates))
	if err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (h *Hub) handleProduce(s *session, raw []byte) (interface{}, error) {
	var p producePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid produce payload")
	}
	_, clientID, _ := s.snapshot()
	producerID, err := h.worker.Produce(p.TransportID, "audio", fromWireRTPParams(p.RTPParameters), "")
	if err != nil {
		return nil, err
	}
	subscribers, err := h.routing.OpenProducer(producerID, clientID)
	if err != nil {
		_ = h.worker.CloseProducer(producerID)
		return nil, err
	}
	for _, subscriberID := range subscribers {
		h.sendToClient(subscriberID, EventProducerOpened, producerOpenedPayload{ProducerID: producerID, ClientID: clientID})
	}
	return produceResult{ProducerID: producerID}, nil
}

func (h *Hub) handleConsume(s *session, raw []byte) (interface{}, error) {
	var p consumePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid consume payload")
	}
	_, clientID, _ := s.snapshot()
	remoteCaps := fromWireCapabilities(p.RTPCapabilities)
	if !h.worker.CanConsume(remoteCaps) {
		return nil, apierr.New(apierr.UnsupportedCodec, "remote capabilities do not include a supported codec")
	}
	consumerID, rtpParams, consumerType, err := h.routing.Consume(clientID, p.ProducerID, remoteCaps)
	if err != nil {
		return nil, err
	}
	return consumeResult{ConsumerID: consumerID, ProducerID: p.ProducerID, RTPParameters: toWireRTPParams(rtpParams), Type: consumerType}, nil
}

func (h *Hub) handleSpeaking(s *session, raw []byte, speaking bool) (interface{}, error) {
	var p speakingPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid speaking payload")
	}
	_, clientID, _ := s.snapshot()
	snap, err := h.clients.Get(clientID)
	if err != nil {
		return nil, err
	}
	if !permission.Allow(snap.Permissions, p.ChannelID, h.channels.IsMember(p.ChannelID, clientID), permission.Speak) {
		return struct{}{}, nil // advisory: silently ignored when not permitted (spec §4.5)
	}
	event := EventClientSpeaking
	if !speaking {
		event = EventClientStopSpeaking
	}
	h.broadcastToChannelWithListenRight(p.ChannelID, event, clientSpeakingPayload{ClientID: clientID, ChannelID: p.ChannelID})
	return struct{}{}, nil
}

func (h *Hub) handleSetChannelMute(s *session, raw []byte) (interface{}, error) {
	var p muteVolumePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid setChannelMute payload")
	}
	_, clientID, _ := s.snapshot()
	if err := h.clients.SetChannelMute(clientID, p.ChannelID, p.Muted); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (h *Hub) handleSetChannelVolume(s *session, raw []byte) (interface{}, error) {
	var p muteVolumePayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid setChannelVolume payload")
	}
	_, clientID, _ := s.snapshot()
	if err := h.clients.SetChannelVolume(clientID, p.ChannelID, p.Volume); err != nil {
		return nil, err
	}
	return struct{}{}, nil
}

func (h *Hub) requireAdmin(s *session) error {
	_, _, admin := s.snapshot()
	if !admin {
		return apierr.New(apierr.PermissionDenied, "admin flag required")
	}
	return nil
}

func (h *Hub) handleCreateChannel(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p channelPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid createChannel payload")
	}
	if err := h.validator.ValidateChannelName(p.Name); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid channel name")
	}
	snap, err := h.channels.Create(p.Name, h.sanitizer.SanitizeMessage(p.Description))
	if err != nil {
		return nil, err
	}
	result := channelResult{ChannelID: snap.ID, Name: snap.Name, Description: snap.Description, MemberCount: snap.MemberCount, ProducerCount: snap.ProducerCount}
	h.broadcastCreated(result)
	return result, nil
}

func (h *Hub) broadcastCreated(result channelResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sess := range h.sessions {
		sess.sendEvent(EventChannelCreated, result)
	}
}

func (h *Hub) handleUpdateChannel(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p channelPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid updateChannel payload")
	}
	if p.Name != "" {
		if err := h.validator.ValidateChannelName(p.Name); err != nil {
			return nil, apierr.Wrap(apierr.BadRequest, err, "invalid channel name")
		}
	}
	snap, err := h.channels.UpdateMetadata(p.ChannelID, p.Name, h.sanitizer.SanitizeMessage(p.Description))
	if err != nil {
		return nil, err
	}
	result := channelResult{ChannelID: snap.ID, Name: snap.Name, Description: snap.Description, MemberCount: snap.MemberCount, ProducerCount: snap.ProducerCount}
	h.broadcastToChannel(snap.ID, EventChannelUpdated, result)
	return result, nil
}

func (h *Hub) handleDeleteChannel(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p channelPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid deleteChannel payload")
	}
	snap, err := h.channels.Get(p.ChannelID)
	if err != nil {
		return nil, err
	}
	if snap.System {
		return nil, apierr.New(apierr.Conflict, "the system channel cannot be deleted")
	}

	// spec: deletion first removes all member associations and closes
	// associated producers/consumers, then removes the channel record.
	members := h.channels.MembersOf(p.ChannelID)
	producerIDs := h.channels.ProducersOf(p.ChannelID)
	for _, producerID := range producerIDs {
		h.fanOutProducerClosed(h.routing.CloseProducer(producerID))
	}
	for _, memberID := range members {
		_ = h.clients.RemoveFromChannel(memberID, p.ChannelID)
	}

	if err := h.channels.Delete(p.ChannelID); err != nil {
		return nil, err
	}
	for _, memberID := range members {
		h.sendToClient(memberID, EventChannelDeleted, channelPayload{ChannelID: p.ChannelID})
	}
	return struct{}{}, nil
}

func (h *Hub) handleAuthorizePending(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p authorizePendingPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid authorizePending payload")
	}
	snap, err := h.clients.Authorize(p.ClientID, p.Channels, fromWirePermissions(p.Permissions))
	if err != nil {
		return nil, err
	}
	if pendingSession, ok := h.activeSession(p.ClientID); ok {
		pendingSession.activate(snap.ID, false)
	}
	h.sendToClient(p.ClientID, EventAuthorized, authorizedPayload{ClientID: snap.ID, Channels: snap.Channels})
	for _, chID := range p.Channels {
		if err := h.channels.AddMember(chID, p.ClientID); err != nil {
			continue
		}
		h.broadcastToChannel(chID, EventClientJoinedChannel, clientJoinedPayload{ChannelID: chID, ClientID: p.ClientID})
	}
	return struct{}{}, nil
}

func (h *Hub) activeSession(clientID string) (*session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[clientID]
	return s, ok
}

func (h *Hub) handleUpdatePermissions(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p updatePermissionsPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid updatePermissions payload")
	}
	patch := client.PermissionPatch{
		SpeakToAll:  p.SpeakToAll,
		ListenToAll: p.ListenToAll,
		SpeakTo:     p.SpeakTo,
		ListenTo:    p.ListenTo,
	}
	matrix, err := h.clients.UpdatePermissions(p.ClientID, patch)
	if err != nil {
		return nil, err
	}
	// a narrowed matrix can strip the producers the client already opened
	// out of their remaining speak channels, and strip consumers whose
	// listen right was revoked (spec §4.5: permission changes take effect
	// immediately on in-flight producers/consumers).
	for _, closure := range h.routing.ReconcilePermissions(p.ClientID) {
		h.fanOutProducerClosed(closure)
	}
	return permissionsResult{ClientID: p.ClientID, Permissions: toWirePermissions(matrix)}, nil
}

func (h *Hub) handleRejectPending(s *session, raw []byte) (interface{}, error) {
	if err := h.requireAdmin(s); err != nil {
		return nil, err
	}
	var p rejectPendingPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, apierr.Wrap(apierr.BadRequest, err, "invalid rejectPending payload")
	}
	if err := h.clients.Reject(p.ClientID); err != nil {
		return nil, err
	}
	h.sendToClient(p.ClientID, EventRejected, rejectedPayload{ClientID: p.ClientID})
	return struct{}{}, nil
}
