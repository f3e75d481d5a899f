package mediaworker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

// consumerState is the state machine in spec §4.7: Negotiating -> Active
// -> (Paused <-> Active) -> Closed (terminal).
type consumerState string

const (
	consumerNegotiating consumerState = "negotiating"
	consumerActive      consumerState = "active"
	consumerPaused      consumerState = "paused"
	consumerClosed      consumerState = "closed"
)

// consumer materializes one (producer, subscriber) pairing on a receive
// transport (spec §3).
type consumer struct {
	mu sync.Mutex

	id          string
	transportID string
	producerID  string
	clientID    string

	sender *webrtc.RTPSender
	track  *webrtc.TrackLocalStaticRTP
	jitter *jitterBuffer

	state consumerState
}

// canConsume reports whether the remote capabilities include the Opus
// profile this producer was created with (spec §4.1 canConsume()).
func canConsume(remoteCaps []RTPCodecCapability) bool {
	for _, c := range remoteCaps {
		if c.MimeType == opusCodec.MimeType {
			return true
		}
	}
	return false
}

func (w *Worker) consume(transportID, producerID string, remoteCaps []RTPCodecCapability, startPaused bool) (string, RTPParameters, string, error) {
	if !canConsume(remoteCaps) {
		return "", RTPParameters{}, "", apierr.New(apierr.UnsupportedCodec, "subscriber capabilities do not include Opus")
	}

	w.mu.RLock()
	t, tok := w.transports[transportID]
	p, pok := w.producers[producerID]
	w.mu.RUnlock()
	if !tok {
		return "", RTPParameters{}, "", apierr.Newf(apierr.NotFound, "unknown transport %s", transportID)
	}
	if !pok {
		return "", RTPParameters{}, "", apierr.Newf(apierr.NotFound, "unknown producer %s", producerID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return "", RTPParameters{}, "", apierr.New(apierr.Conflict, "transport is closed")
	}
	if t.direction != Receive {
		return "", RTPParameters{}, "", apierr.New(apierr.BadRequest, "consume requires a receive transport")
	}

	localTrack, err := webrtc.NewTrackLocalStaticRTP(opusCodec.toPion(), producerID, t.clientID)
	if err != nil {
		return "", RTPParameters{}, "", apierr.Wrap(apierr.Internal, err, "failed to create local track")
	}
	sender, err := w.api.NewRTPSender(localTrack, t.dtls)
	if err != nil {
		return "", RTPParameters{}, "", apierr.Wrap(apierr.Internal, err, "failed to create RTP sender")
	}
	ssrc := uint32(sender.GetParameters().Encodings[0].SSRC)
	if err := sender.Send(webrtc.RTPSendParameters{
		RTPParameters: sender.GetParameters().RTPParameters,
	}); err != nil {
		return "", RTPParameters{}, "", apierr.Wrap(apierr.Conflict, err, "failed to start RTP sender")
	}

	c := &consumer{
		id:          uuid.NewString(),
		transportID: transportID,
		producerID:  producerID,
		clientID:    t.clientID,
		sender:      sender,
		track:       localTrack,
		jitter:      newJitterBuffer(defaultJitterConfig()),
		state:       consumerNegotiating,
	}
	if startPaused {
		c.state = consumerPaused
	} else {
		c.state = consumerActive
	}
	t.consumers[c.id] = c

	p.mu.Lock()
	if p.subscribers == nil {
		p.mu.Unlock()
		_ = sender.Stop()
		return "", RTPParameters{}, "", apierr.New(apierr.Conflict, "producer is closed")
	}
	p.subscribers[c.id] = c
	p.mu.Unlock()

	w.mu.Lock()
	w.consumers[c.id] = c
	w.mu.Unlock()

	params := RTPParameters{
		MID:         c.id,
		Codec:       opusCodec,
		PayloadType: 111,
		SSRC:        ssrc,
	}
	return c.id, params, ConsumerTypeSimple, nil
}

// deliver queues pkt in this consumer's jitter buffer and then, on the
// caller's goroutine, writes at most one ready packet from the buffer to
// the local track.
func (c *consumer) deliver(pkt *rtp.Packet) {
	c.mu.Lock()
	if c.state == consumerClosed || c.state == consumerPaused {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.jitter.Push(pkt)
	if out := c.jitter.Pop(); out != nil {
		_ = c.track.WriteRTP(out)
	}
}

func (w *Worker) pauseConsumer(consumerID string, pause bool) error {
	w.mu.RLock()
	c, ok := w.consumers[consumerID]
	w.mu.RUnlock()
	if !ok {
		return apierr.Newf(apierr.NotFound, "unknown consumer %s", consumerID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == consumerClosed {
		return apierr.New(apierr.Conflict, "consumer is closed")
	}
	if pause {
		c.state = consumerPaused
	} else {
		c.state = consumerActive
	}
	return nil
}

func (w *Worker) closeConsumer(consumerID string) error {
	w.mu.Lock()
	c, ok := w.consumers[consumerID]
	if ok {
		delete(w.consumers, consumerID)
	}
	w.mu.Unlock()
	if !ok {
		return nil
	}
	w.closeConsumerInternal(c)
	return nil
}

func (w *Worker) closeConsumerInternal(c *consumer) {
	c.mu.Lock()
	if c.state == consumerClosed {
		c.mu.Unlock()
		return
	}
	c.state = consumerClosed
	c.mu.Unlock()
	_ = c.sender.Stop()
}
