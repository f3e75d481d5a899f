package mediaworker

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestValidateProduceCodecAcceptsOpusOnly(t *testing.T) {
	assert.True(t, validateProduceCodec(webrtc.MimeTypeOpus))
	assert.False(t, validateProduceCodec(webrtc.MimeTypeVP8))
	assert.False(t, validateProduceCodec("audio/PCMU"))
}

func TestCapabilitiesAdvertisesSingleOpusProfile(t *testing.T) {
	caps := capabilities()
	assert.Len(t, caps.Codecs, 1)
	assert.Equal(t, webrtc.MimeTypeOpus, caps.Codecs[0].MimeType)
	assert.Equal(t, uint32(48000), caps.Codecs[0].ClockRate)
}

func TestCanConsumeRequiresOpusInRemoteCaps(t *testing.T) {
	assert.True(t, canConsume([]RTPCodecCapability{{MimeType: webrtc.MimeTypeOpus}}))
	assert.False(t, canConsume([]RTPCodecCapability{{MimeType: webrtc.MimeTypeVP8}}))
	assert.False(t, canConsume(nil))
}
