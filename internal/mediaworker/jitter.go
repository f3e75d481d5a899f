package mediaworker

import (
	"sync"
	"time"

	"github.com/pion/rtp"
)

// jitterBuffer smooths network timing variation between a producer's
// remote track and a consumer's local track, adapted from the teacher's
// byte-buffer JitterBuffer to hold parsed *rtp.Packet values directly
// (the SFU forwards packets, never raw byte frames).
type jitterBuffer struct {
	mu          sync.Mutex
	buffer      []*bufferedPacket
	targetDelay time.Duration
	minDelay    time.Duration
	maxDelay    time.Duration
	maxPackets  int
}

type bufferedPacket struct {
	pkt      *rtp.Packet
	received time.Time
}

type jitterConfig struct {
	TargetDelay time.Duration
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxPackets  int
}

func defaultJitterConfig() jitterConfig {
	return jitterConfig{
		TargetDelay: 50 * time.Millisecond,
		MinDelay:    20 * time.Millisecond,
		MaxDelay:    200 * time.Millisecond,
		MaxPackets:  50,
	}
}

func newJitterBuffer(cfg jitterConfig) *jitterBuffer {
	if cfg.TargetDelay == 0 {
		cfg = defaultJitterConfig()
	}
	return &jitterBuffer{
		buffer:      make([]*bufferedPacket, 0, cfg.MaxPackets),
		targetDelay: cfg.TargetDelay,
		minDelay:    cfg.MinDelay,
		maxDelay:    cfg.MaxDelay,
		maxPackets:  cfg.MaxPackets,
	}
}

// Push inserts pkt in sequence-number order, dropping duplicates and the
// oldest entry once maxPackets is exceeded.
func (jb *jitterBuffer) Push(pkt *rtp.Packet) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	entry := &bufferedPacket{pkt: pkt, received: time.Now()}

	if len(jb.buffer) >= jb.maxPackets {
		jb.buffer = jb.buffer[1:]
	}

	inserted := false
	for i := len(jb.buffer) - 1; i >= 0; i-- {
		if seqLessThan(jb.buffer[i].pkt.SequenceNumber, pkt.SequenceNumber) {
			jb.buffer = append(jb.buffer, nil)
			copy(jb.buffer[i+2:], jb.buffer[i+1:])
			jb.buffer[i+1] = entry
			inserted = true
			break
		}
		if jb.buffer[i].pkt.SequenceNumber == pkt.SequenceNumber {
			return // duplicate, drop
		}
	}
	if !inserted {
		jb.buffer = append([]*bufferedPacket{entry}, jb.buffer...)
	}
}

// Pop returns the next packet once it has aged past targetDelay or at
// least three packets are queued, or nil if neither holds yet.
func (jb *jitterBuffer) Pop() *rtp.Packet {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	if len(jb.buffer) == 0 {
		return nil
	}
	head := jb.buffer[0]
	if time.Since(head.received) < jb.targetDelay && len(jb.buffer) < 3 {
		return nil
	}
	jb.buffer = jb.buffer[1:]
	return head.pkt
}

func (jb *jitterBuffer) Reset() {
	jb.mu.Lock()
	defer jb.mu.Unlock()
	jb.buffer = jb.buffer[:0]
}

func seqLessThan(a, b uint16) bool {
	return (b-a) > 0 && (b-a) < 0x8000
}
