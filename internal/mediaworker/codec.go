package mediaworker

import "github.com/pion/webrtc/v4"

// opusCodec is the single negotiated codec (spec §4.1: "Negotiate Opus at
// 48 kHz stereo-capable, with DTX, FEC, and 20 ms frame size encouraged").
var opusCodec = RTPCodecCapability{
	MimeType:    webrtc.MimeTypeOpus,
	ClockRate:   48000,
	Channels:    2,
	SDPFmtpLine: "minptime=10;useinbandfec=1;usedtx=1",
}

// audioLevelExtensionURI is the RFC 6464 one-byte header extension the
// active-speaker observer reads when a client negotiates it; see observer.go.
const audioLevelExtensionURI = "urn:ietf:params:rtp-hdrext:ssrc-audio-level"

// capabilities is the static, process-wide answer to rtpCapabilities().
func capabilities() Capabilities {
	return Capabilities{Codecs: []RTPCodecCapability{opusCodec}}
}

// validateProduceCodec rejects anything that is not the negotiated Opus
// profile — "this system is audio-only" (spec §4.1).
func validateProduceCodec(mimeType string) bool {
	return mimeType == webrtc.MimeTypeOpus
}
