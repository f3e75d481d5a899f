// Package signaling implements the session-oriented message bus between
// each client and the server (spec §4.5): request/response dispatch with
// correlation ids, fire-and-forget events, and the per-session
// authentication state machine. It is adapted from the teacher's
// internal/network/signaling package — same envelope style and
// gorilla/websocket read/write-pump shape — generalized to carry
// request/response correlation the teacher's fire-and-forget envelope
// lacked.
package signaling

import "encoding/json"

// Envelope is the single wire shape carried over the websocket. A request
// has Event+ID+Payload; a response has ID+Ok+Result/Error; an event has
// Event+Payload and no ID (spec §6).
type Envelope struct {
	Event   string          `json:"event,omitempty"`
	ID      *uint64         `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ok      *bool           `json:"ok,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// WireError is the `{kind, message}` shape spec §6/§7 requires on a
// failed request.
type WireError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Request event names (spec §4.5 table).
const (
	EventAuthenticate      = "authenticate"
	EventAdminAuthenticate = "adminAuthenticate"
	EventGetRTPCaps        = "getRtpCapabilities"
	EventCreateTransport   = "createTransport"
	EventConnectTransport  = "connectTransport"
	EventProduce           = "produce"
	EventConsume           = "consume"
	EventStartSpeaking     = "startSpeaking"
	EventStopSpeaking      = "stopSpeaking"
	EventSetChannelMute    = "setChannelMute"
	EventSetChannelVolume  = "setChannelVolume"
	EventCreateChannel     = "createChannel"
	EventUpdateChannel     = "updateChannel"
	EventDeleteChannel     = "deleteChannel"
	EventAuthorizePending  = "authorizePending"
	EventRejectPending     = "rejectPending"
	EventUpdatePermissions = "updatePermissions"
)

// Server-to-client event names (spec §4.5).
const (
	EventPendingClient       = "pendingClient"
	EventAuthorized          = "authorized"
	EventRejected            = "rejected"
	EventChannelCreated      = "channelCreated"
	EventChannelUpdated      = "channelUpdated"
	EventChannelDeleted      = "channelDeleted"
	EventClientJoinedChannel = "clientJoinedChannel"
	EventClientLeftChannel   = "clientLeftChannel"
	EventClientSpeaking      = "clientSpeaking"
	EventClientStopSpeaking  = "clientStoppedSpeaking"
	EventProducerOpened      = "producerOpened"
	EventProducerClosed      = "producerClosed"
	EventDisconnected        = "disconnected"
)

func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return errEmptyPayload
	}
	return json.Unmarshal(raw, v)
}

func mustMarshal(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
