package signaling

import "errors"

var errEmptyPayload = errors.New("signaling: missing request payload")

// Request payload shapes (spec §4.5).

type authenticatePayload struct {
	DisplayName  string `json:"displayName"`
	ServerSecret string `json:"serverSecret"`
}

type adminAuthenticatePayload struct {
	DisplayName  string `json:"displayName"`
	ServerSecret string `json:"serverSecret"`
	AdminSecret  string `json:"adminSecret"`
}

type createTransportPayload struct {
	Direction string `json:"direction"`
}

type connectTransportPayload struct {
	TransportID    string             `json:"transportId"`
	ICEParameters  wireICEParameters  `json:"iceParameters"`
	ICECandidates  []wireICECandidate `json:"iceCandidates"`
	DTLSParameters wireDTLSParameters `json:"dtlsParameters"`
}

type producePayload struct {
	TransportID   string        `json:"transportId"`
	RTPParameters wireRTPParams `json:"rtpParameters"`
}

type consumePayload struct {
	TransportID      string            `json:"transportId"`
	ProducerID       string            `json:"producerId"`
	RTPCapabilities  wireCapabilities  `json:"rtpCapabilities"`
}

type channelPayload struct {
	ChannelID   string `json:"channelId,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type muteVolumePayload struct {
	ChannelID string  `json:"channelId"`
	Muted     bool    `json:"muted,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
}

type speakingPayload struct {
	ChannelID string `json:"channelId"`
}

type authorizePendingPayload struct {
	ClientID    string            `json:"clientId"`
	Channels    []string          `json:"channels"`
	Permissions wirePermissions   `json:"permissions"`
}

type rejectPendingPayload struct {
	ClientID string `json:"clientId"`
}

type updatePermissionsPayload struct {
	ClientID    string          `json:"clientId"`
	SpeakToAll  *bool           `json:"speakToAll,omitempty"`
	ListenToAll *bool           `json:"listenToAll,omitempty"`
	SpeakTo     map[string]bool `json:"speakTo,omitempty"`
	ListenTo    map[string]bool `json:"listenTo,omitempty"`
}
