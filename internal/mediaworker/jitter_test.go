package mediaworker

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func packetWithSeq(seq uint16) *rtp.Packet {
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}}
}

func TestJitterBufferOrdersOutOfOrderPackets(t *testing.T) {
	jb := newJitterBuffer(jitterConfig{TargetDelay: time.Hour, MinDelay: 0, MaxDelay: time.Hour, MaxPackets: 50})
	jb.Push(packetWithSeq(3))
	jb.Push(packetWithSeq(1))
	jb.Push(packetWithSeq(2))

	// TargetDelay is huge so Pop only releases once backlog reaches 3.
	first := jb.Pop()
	require.NotNil(t, first)
	assert.Equal(t, uint16(1), first.SequenceNumber)
}

func TestJitterBufferDropsDuplicates(t *testing.T) {
	jb := newJitterBuffer(defaultJitterConfig())
	jb.Push(packetWithSeq(5))
	jb.Push(packetWithSeq(5))
	assert.Len(t, jb.buffer, 1)
}

func TestJitterBufferDropsOldestOnOverflow(t *testing.T) {
	jb := newJitterBuffer(jitterConfig{TargetDelay: time.Millisecond, MinDelay: 0, MaxDelay: time.Second, MaxPackets: 2})
	jb.Push(packetWithSeq(1))
	jb.Push(packetWithSeq(2))
	jb.Push(packetWithSeq(3))
	assert.Len(t, jb.buffer, 2)
	assert.Equal(t, uint16(2), jb.buffer[0].pkt.SequenceNumber)
}

func TestJitterBufferPopWaitsForTargetDelay(t *testing.T) {
	jb := newJitterBuffer(jitterConfig{TargetDelay: time.Hour, MinDelay: 0, MaxDelay: time.Hour, MaxPackets: 50})
	jb.Push(packetWithSeq(1))
	assert.Nil(t, jb.Pop())
}

func TestSeqLessThanHandlesWraparound(t *testing.T) {
	assert.True(t, seqLessThan(65535, 0))
	assert.True(t, seqLessThan(1, 2))
	assert.False(t, seqLessThan(2, 1))
}
