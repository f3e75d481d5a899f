package signaling

// Event payload shapes (spec §4.5's event list) and request response
// result shapes that aren't simple scalars.

type authenticateResult struct {
	ClientID     string `json:"clientId"`
	SessionToken string `json:"sessionToken"`
	Status       string `json:"status"`
	AdminFlag    bool   `json:"adminFlag"`
}

type produceResult struct {
	ProducerID string `json:"producerId"`
}

type consumeResult struct {
	ConsumerID    string        `json:"consumerId"`
	ProducerID    string        `json:"producerId"`
	RTPParameters wireRTPParams `json:"rtpParameters"`
	Type          string        `json:"type"`
}

type permissionsResult struct {
	ClientID    string          `json:"clientId"`
	Permissions wirePermissions `json:"permissions"`
}

type channelResult struct {
	ChannelID     string `json:"channelId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	MemberCount   int    `json:"memberCount"`
	ProducerCount int    `json:"producerCount"`
}

type pendingClientPayload struct {
	ClientID    string `json:"clientId"`
	DisplayName string `json:"displayName"`
}

type authorizedPayload struct {
	ClientID string   `json:"clientId"`
	Channels []string `json:"channels"`
}

type rejectedPayload struct {
	ClientID string `json:"clientId"`
}

type clientJoinedPayload struct {
	ChannelID string `json:"channelId"`
	ClientID  string `json:"clientId"`
}

type clientLeftPayload struct {
	ChannelID string `json:"channelId"`
	ClientID  string `json:"clientId"`
}

type clientSpeakingPayload struct {
	ClientID  string `json:"clientId"`
	ChannelID string `json:"channelId"`
}

type producerOpenedPayload struct {
	ProducerID string `json:"producerId"`
	ClientID   string `json:"clientId"`
}

type producerClosedPayload struct {
	ProducerID string `json:"producerId"`
}
