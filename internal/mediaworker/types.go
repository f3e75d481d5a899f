// Package mediaworker owns all SFU state: transports, producers, consumers,
// and the active-speaker observer (spec §4.1). It is reached only through
// the narrow API in this file — no other package touches pion/webrtc types
// directly, so the routing/signaling layers never assume a particular
// media-library object lifecycle (spec §9, "interface polymorphism").
package mediaworker

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Direction is the role of a Transport, mirroring spec §3.
type Direction string

const (
	Send    Direction = "send"
	Receive Direction = "receive"
)

// Capabilities is the static, server-wide set of codecs clients negotiate
// against (spec §4.1 rtpCapabilities()).
type Capabilities struct {
	Codecs []RTPCodecCapability
}

// RTPCodecCapability mirrors webrtc.RTPCodecCapability's wire-relevant
// fields, kept as our own type so callers outside this package never
// import pion/webrtc directly.
type RTPCodecCapability struct {
	MimeType    string
	ClockRate   uint32
	Channels    uint16
	SDPFmtpLine string
}

// ICECandidate is one gathered host/srflx/relay candidate.
type ICECandidate struct {
	Foundation string
	Priority   uint32
	Address    string
	Protocol   string
	Port       uint16
	Typ        string
	TCPType    string
}

// ICEParameters carries the local ICE credentials for a transport.
type ICEParameters struct {
	UsernameFragment string
	Password         string
	ICELite          bool
}

// DTLSFingerprint is one certificate fingerprint entry.
type DTLSFingerprint struct {
	Algorithm string
	Value     string
}

// DTLSParameters carries the local (or, on connectTransport, remote) DTLS
// role and fingerprint set.
type DTLSParameters struct {
	Role         string // "auto", "client", "server"
	Fingerprints []DTLSFingerprint
}

// SCTPParameters advertises data-channel capacity. Unused by this spec
// (audio only) but part of the wire contract (spec §6: "SCTP enabled for
// data but unused by this spec").
type SCTPParameters struct {
	Port           uint16
	MaxMessageSize uint32
}

// TransportParams is the result of createTransport(): everything the
// client needs to start ICE/DTLS.
type TransportParams struct {
	ID             string
	ICEParameters  ICEParameters
	ICECandidates  []ICECandidate
	DTLSParameters DTLSParameters
	SCTPParameters SCTPParameters
}

// RTPParameters describes one producer's or consumer's encoding
// parameters. Only the fields this router cares about are modeled;
// everything else (header extensions, rtcp feedback) is accepted as
// opaque and passed through to pion unmodified where needed.
type RTPParameters struct {
	MID         string
	Codec       RTPCodecCapability
	PayloadType uint8
	SSRC        uint32
}

// ConsumerType distinguishes a simulcast consumer from a simple one; this
// router never does simulcast (audio only) so it is always "simple", but
// the field is part of the wire contract mediasoup-derived clients expect.
const ConsumerTypeSimple = "simple"

// SpeakingEvent is one sample from the active-speaker observer.
type SpeakingEvent struct {
	ProducerID string
	VolumeDBFS float64
	Silence    bool
	At         time.Time
}

// toPionCodecCapability converts our codec type to pion's.
func (c RTPCodecCapability) toPion() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    c.MimeType,
		ClockRate:   c.ClockRate,
		Channels:    c.Channels,
		SDPFmtpLine: c.SDPFmtpLine,
	}
}
