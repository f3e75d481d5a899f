package signaling

import (
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/permission"
)

// Wire-shape mirrors of internal/mediaworker's types (spec §6: JSON over
// the signaling socket) plus conversions both ways.

type wireCodec struct {
	MimeType    string `json:"mimeType"`
	ClockRate   uint32 `json:"clockRate"`
	Channels    uint16 `json:"channels"`
	SDPFmtpLine string `json:"sdpFmtpLine,omitempty"`
}

type wireCapabilities struct {
	Codecs []wireCodec `json:"codecs"`
}

func toWireCapabilities(c mediaworker.Capabilities) wireCapabilities {
	out := wireCapabilities{Codecs: make([]wireCodec, 0, len(c.Codecs))}
	for _, codec := range c.Codecs {
		out.Codecs = append(out.Codecs, wireCodec{
			MimeType:    codec.MimeType,
			ClockRate:   codec.ClockRate,
			Channels:    codec.Channels,
			SDPFmtpLine: codec.SDPFmtpLine,
		})
	}
	return out
}

func fromWireCapabilities(c wireCapabilities) []mediaworker.RTPCodecCapability {
	out := make([]mediaworker.RTPCodecCapability, 0, len(c.Codecs))
	for _, codec := range c.Codecs {
		out = append(out, mediaworker.RTPCodecCapability{
			MimeType:    codec.MimeType,
			ClockRate:   codec.ClockRate,
			Channels:    codec.Channels,
			SDPFmtpLine: codec.SDPFmtpLine,
		})
	}
	return out
}

type wireICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type wireICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type wireDTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type wireDTLSParameters struct {
	Role         string                `json:"role"`
	Fingerprints []wireDTLSFingerprint `json:"fingerprints"`
}

type wireSCTPParameters struct {
	Port           uint16 `json:"port"`
	MaxMessageSize uint32 `json:"maxMessageSize"`
}

type wireTransportParams struct {
	ID             string              `json:"id"`
	ICEParameters  wireICEParameters   `json:"iceParameters"`
	ICECandidates  []wireICECandidate  `json:"iceCandidates"`
	DTLSParameters wireDTLSParameters  `json:"dtlsParameters"`
	SCTPParameters wireSCTPParameters  `json:"sctpParameters"`
}

func toWireTransportParams(p mediaworker.TransportParams) wireTransportParams {
	out := wireTransportParams{
		ID: p.ID,
		ICEParameters: wireICEParameters{
			UsernameFragment: p.ICEParameters.UsernameFragment,
			Password:         p.ICEParameters.Password,
			ICELite:          p.ICEParameters.ICELite,
		},
		DTLSParameters: wireDTLSParameters{Role: p.DTLSParameters.Role},
		SCTPParameters: wireSCTPParameters{
			Port:           p.SCTPParameters.Port,
			MaxMessageSize: p.SCTPParameters.MaxMessageSize,
		},
	}
	for _, c := range p.ICECandidates {
		out.ICECandidates = append(out.ICECandidates, wireICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol,
			Port:       c.Port,
			Type:       c.Typ,
			TCPType:    c.TCPType,
		})
	}
	for _, fp := range p.DTLSParameters.Fingerprints {
		out.DTLSParameters.Fingerprints = append(out.DTLSParameters.Fingerprints, wireDTLSFingerprint{
			Algorithm: fp.Algorithm,
			Value:     fp.Value,
		})
	}
	return out
}

func fromWireICEParameters(p wireICEParameters) mediaworker.ICEParameters {
	return mediaworker.ICEParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, ICELite: p.ICELite}
}

func fromWireICECandidates(cs []wireICECandidate) []mediaworker.ICECandidate {
	out := make([]mediaworker.ICECandidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, mediaworker.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol,
			Port:       c.Port,
			Typ:        c.Type,
			TCPType:    c.TCPType,
		})
	}
	return out
}

func fromWireDTLSParameters(p wireDTLSParameters) mediaworker.DTLSParameters {
	out := mediaworker.DTLSParameters{Role: p.Role}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, mediaworker.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

type wireRTPParams struct {
	MID         string    `json:"mid,omitempty"`
	Codec       wireCodec `json:"codec"`
	PayloadType uint8     `json:"payloadType,omitempty"`
	SSRC        uint32    `json:"ssrc"`
}

func fromWireRTPParams(p wireRTPParams) mediaworker.RTPParameters {
	return mediaworker.RTPParameters{
		MID: p.MID,
		Codec: mediaworker.RTPCodecCapability{
			MimeType:    p.Codec.MimeType,
			ClockRate:   p.Codec.ClockRate,
			Channels:    p.Codec.Channels,
			SDPFmtpLine: p.Codec.SDPFmtpLine,
		},
		PayloadType: p.PayloadType,
		SSRC:        p.SSRC,
	}
}

func toWireRTPParams(p mediaworker.RTPParameters) wireRTPParams {
	return wireRTPParams{
		MID: p.MID,
		Codec: wireCodec{
			MimeType:    p.Codec.MimeType,
			ClockRate:   p.Codec.ClockRate,
			Channels:    p.Codec.Channels,
			SDPFmtpLine: p.Codec.SDPFmtpLine,
		},
		PayloadType: p.PayloadType,
		SSRC:        p.SSRC,
	}
}

type wirePermissions struct {
	SpeakToAll  bool            `json:"speakToAll,omitempty"`
	ListenToAll bool            `json:"listenToAll,omitempty"`
	SpeakTo     map[string]bool `json:"speakTo,omitempty"`
	ListenTo    map[string]bool `json:"listenTo,omitempty"`
}

func fromWirePermissions(p wirePermissions) permission.Matrix {
	m := permission.NewMatrix()
	m.SpeakToAll = p.SpeakToAll
	m.ListenToAll = p.ListenToAll
	for k, v := range p.SpeakTo {
		m.SpeakTo[k] = v
	}
	for k, v := range p.ListenTo {
		m.ListenTo[k] = v
	}
	return m
}

func toWirePermissions(m permission.Matrix) wirePermissions {
	return wirePermissions{
		SpeakToAll:  m.SpeakToAll,
		ListenToAll: m.ListenToAll,
		SpeakTo:     m.SpeakTo,
		ListenTo:    m.ListenTo,
	}
}
