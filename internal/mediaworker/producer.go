package mediaworker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

// producer is tied to a send transport and carries one client's audio
// track (spec §3). appData.channelHint lets the routing core know which
// channel the producer is destined for before registry lookups complete.
type producer struct {
	mu sync.RWMutex

	id          string
	transportID string
	clientID    string
	channelHint string

	receiver *webrtc.RTPReceiver
	paused   bool
	closed   bool

	subscribers map[string]*consumer // consumerID -> consumer reading from this producer

	lastPacketAt time.Time
	packetCount  uint64
	lastLevel    *int // last decoded RFC 6464 audio level, if negotiated
}

func (w *Worker) produce(transportID, mimeType string, ssrc uint32, channelHint string) (string, error) {
	w.mu.RLock()
	t, ok := w.transports[transportID]
	w.mu.RUnlock()
	if !ok {
		return "", apierr.Newf(apierr.NotFound, "unknown transport %s", transportID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", apierr.New(apierr.Conflict, "transport is closed")
	}
	if t.direction != Send {
		return "", apierr.New(apierr.BadRequest, "produce requires a send transport")
	}
	if !validateProduceCodec(mimeType) {
		return "", apierr.Newf(apierr.UnsupportedCodec, "unsupported codec %s", mimeType)
	}

	receiver, err := w.api.NewRTPReceiver(webrtc.RTPCodecTypeAudio, t.dtls)
	if err != nil {
		return "", apierr.Wrap(apierr.Internal, err, "failed to create RTP receiver")
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{
		Encodings: []webrtc.RTPDecodingParameters{{RTPCodingParameters: webrtc.RTPCodingParameters{SSRC: webrtc.SSRC(ssrc)}}},
	}); err != nil {
		return "", apierr.Wrap(apierr.Conflict, err, "failed to start RTP receiver")
	}

	p := &producer{
		id:          uuid.NewString(),
		transportID: transportID,
		clientID:    t.clientID,
		channelHint: channelHint,
		receiver:    receiver,
		subscribers: make(map[string]*consumer),
	}
	t.producers[p.id] = p

	w.mu.Lock()
	w.producers[p.id] = p
	w.mu.Unlock()

	w.group.Go(func() error {
		w.forwardProducer(p)
		return nil
	})

	if w.metrics != nil {
		w.metrics.RTPPacketsIn.WithLabelValues(channelHint).Add(0)
	}
	return p.id, nil
}

// forwardProducer reads RTP from the producer's remote track and fans it
// out to every subscribed consumer, adapted from the pack's SFU
// forwardTrack loop (parallel per-producer goroutines supervised by the
// Worker's errgroup rather than bare `go func(){}()`).
func (w *Worker) forwardProducer(p *producer) {
	track := p.receiver.Track()
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			w.closeProducer(p.id, "read error")
			return
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}

		p.mu.Lock()
		p.lastPacketAt = time.Now()
		p.packetCount++
		if level, ok := readAudioLevelExtension(pkt); ok {
			p.lastLevel = &level
		}
		paused := p.paused
		subs := make([]*consumer, 0, len(p.subscribers))
		for _, c := range p.subscribers {
			subs = append(subs, c)
		}
		p.mu.Unlock()

		if paused {
			continue
		}
		if w.metrics != nil {
			w.metrics.RTPPacketsIn.WithLabelValues(p.channelHint).Inc()
		}
		for _, c := range subs {
			c.deliver(pkt)
		}
	}
}

func (w *Worker) pauseProducer(producerID string, pause bool) error {
	w.mu.RLock()
	p, ok := w.producers[producerID]
	w.mu.RUnlock()
	if !ok {
		return apierr.Newf(apierr.NotFound, "unknown producer %s", producerID)
	}
	p.mu.Lock()
	p.paused = pause
	p.mu.Unlock()
	return nil
}

func (w *Worker) closeProducer(producerID, reason string) error {
	w.mu.Lock()
	p, ok := w.producers[producerID]
	if ok {
		delete(w.producers, producerID)
	}
	w.mu.Unlock()
	if !ok {
		return nil
	}
	w.closeProducerInternal(p, reason)
	return nil
}

// closeProducerInternal closes every consumer subscribed to p, then marks
// p closed. Called either directly or as part of transport cascade close.
func (w *Worker) closeProducerInternal(p *producer, reason string) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	subs := make([]*consumer, 0, len(p.subscribers))
	for _, c := range p.subscribers {
		subs = append(subs, c)
	}
	p.subscribers = nil
	p.mu.Unlock()

	for _, c := range subs {
		w.closeConsumerInternal(c)
	}
	_ = p.receiver.Stop()

	if w.onProducerClosed != nil {
		w.onProducerClosed(p.id, p.clientID, p.channelHint, reason)
	}
}
