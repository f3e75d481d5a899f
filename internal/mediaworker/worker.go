package mediaworker

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/observability"
)

// Config controls the Worker's ICE/TURN/public-IP behavior (mirrors
// internal/config.MediaConfig; kept separate so this package has no
// dependency on the config package's env-loading concerns).
type Config struct {
	ListenIP          string
	AnnouncedIP       string
	PortMin           uint16
	PortMax           uint16
	TURNHost          string
	TURNSecret        string
	TURNCredentialTTL time.Duration
}

// Worker owns all SFU state: transports, producers, consumers, and the
// active-speaker observer (spec §4.1). It is reached only through this
// file's methods and the package-level functions in transport.go,
// producer.go, consumer.go.
type Worker struct {
	mu sync.RWMutex

	cfg     Config
	api     *webrtc.API
	dtlsKey *ecdsa.PrivateKey
	metrics *observability.Metrics

	transports map[string]*transport
	producers  map[string]*producer
	consumers  map[string]*consumer

	group  *errgroup.Group
	cancel context.CancelFunc

	// onProducerClosed notifies the Audio Routing Core so it can close
	// dependent consumers and emit producerClosed to subscribers.
	onProducerClosed func(producerID, ownerClientID, channelHint, reason string)

	died   chan error
	closed bool
}

// New constructs a Worker. settingEngine constrains the UDP port range
// and announced IP per spec §6 (MEDIA_PORT_MIN/MAX, MEDIA_ANNOUNCED_IP);
// no TCP port range is set.
func New(cfg Config, metrics *observability.Metrics) (*Worker, error) {
	se := webrtc.SettingEngine{}
	if cfg.PortMin != 0 && cfg.PortMax != 0 {
		if err := se.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, fmt.Errorf("mediaworker: invalid port range: %w", err)
		}
	}
	if cfg.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{cfg.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("mediaworker: failed to generate DTLS key: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		cfg:        cfg,
		api:        webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		dtlsKey:    key,
		metrics:    metrics,
		transports: make(map[string]*transport),
		producers:  make(map[string]*producer),
		consumers:  make(map[string]*consumer),
		died:       make(chan error, 1),
		cancel:     cancel,
	}
	g, _ := errgroup.WithContext(ctx)
	w.group = g
	return w, nil
}

// OnProducerClosed registers the callback invoked whenever a producer
// closes for any reason (explicit close, transport cascade, disconnect).
func (w *Worker) OnProducerClosed(fn func(producerID, ownerClientID, channelHint, reason string)) {
	w.onProducerClosed = fn
}

// RTPCapabilities returns the static, process-wide codec set (spec §4.1).
func (w *Worker) RTPCapabilities() Capabilities { return capabilities() }

// CreateTransport implements spec §4.1 createTransport.
func (w *Worker) CreateTransport(clientID string, direction Direction) (TransportParams, error) {
	return w.createTransport(clientID, direction)
}

// ConnectTransport implements spec §4.1 connectTransport.
func (w *Worker) ConnectTransport(transportID string, remoteDTLS DTLSParameters, remoteICE ICEParameters, remoteCandidates []ICECandidate) error {
	return w.connectTransport(transportID, remoteDTLS, remoteICE, remoteCandidates)
}

// Produce implements spec §4.1 produce.
func (w *Worker) Produce(transportID, kind string, params RTPParameters, channelHint string) (string, error) {
	if kind != "audio" {
		return "", apierr.Newf(apierr.UnsupportedCodec, "unsupported media kind %s", kind)
	}
	return w.produce(transportID, params.Codec.MimeType, params.SSRC, channelHint)
}

// CanConsume implements spec §4.1 canConsume.
func (w *Worker) CanConsume(remoteCaps []RTPCodecCapability) bool { return canConsume(remoteCaps) }

// Consume implements spec §4.1 consume.
func (w *Worker) Consume(transportID, producerID string, remoteCaps []RTPCodecCapability, startPaused bool) (string, RTPParameters, string, error) {
	return w.consume(transportID, producerID, remoteCaps, startPaused)
}

// PauseProducer/ResumeProducer implement spec §4.1 pause/resume(producerId).
func (w *Worker) PauseProducer(producerID string) error  { return w.pauseProducer(producerID, true) }
func (w *Worker) ResumeProducer(producerID string) error { return w.pauseProducer(producerID, false) }

// PauseConsumer/ResumeConsumer implement spec §4.1 pause/resume(consumerId).
func (w *Worker) PauseConsumer(consumerID string) error  { return w.pauseConsumer(consumerID, true) }
func (w *Worker) ResumeConsumer(consumerID string) error { return w.pauseConsumer(consumerID, false) }

// CloseProducer implements spec §4.1 close(producerId).
func (w *Worker) CloseProducer(producerID string) error { return w.closeProducer(producerID, "closed") }

// CloseConsumer implements spec §4.1 close(consumerId).
func (w *Worker) CloseConsumer(consumerID string) error { return w.closeConsumer(consumerID) }

// CloseTransport implements spec §4.1 close(transportId); cascades to all
// dependent producers/consumers (spec §4.8).
func (w *Worker) CloseTransport(transportID string) error {
	return w.closeTransport(transportID, "closed")
}

// ObserveSpeakingProducers starts the active-speaker observer and returns
// it as a channel of events. The observer runs in the Worker's errgroup
// and stops, closing the channel, when ctx is done.
func (w *Worker) ObserveSpeakingProducers(ctx context.Context, thresholdDBFS float64, interval, holdOff time.Duration) <-chan SpeakingEvent {
	out := make(chan SpeakingEvent, 64)
	w.group.Go(func() error {
		defer close(out)
		w.observeSpeakingProducers(ctx, thresholdDBFS, interval, holdOff, func(ev SpeakingEvent) {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		})
		return nil
	})
	return out
}

// Died returns a channel that is sent to, once, when the Worker's
// supervised goroutines exit unexpectedly — spec §4.1/§4.8: "Worker death
// is fatal".
func (w *Worker) Died() <-chan error { return w.died }

// Close shuts down every transport and stops the supervisor group.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	transports := make([]*transport, 0, len(w.transports))
	for _, t := range w.transports {
		transports = append(transports, t)
	}
	w.mu.Unlock()

	for _, t := range transports {
		t.mu.Lock()
		w.closeTransportLocked(t, "worker shutdown")
		t.mu.Unlock()
	}
	w.cancel()
	go func() {
		if err := w.group.Wait(); err != nil {
			select {
			case w.died <- err:
			default:
			}
		}
	}()
	return nil
}
