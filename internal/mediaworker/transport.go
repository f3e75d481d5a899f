package mediaworker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

// transport is one ICE+DTLS pair — the ORTC building blocks pion/webrtc
// exposes for ICE/DTLS introspection without SDP, matching the
// createTransport/connectTransport contract of spec §4.1 (mediasoup-shaped,
// not an offer/answer PeerConnection).
type transport struct {
	mu sync.Mutex

	id        string
	direction Direction
	clientID  string

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	connected bool
	closed    bool

	producers map[string]*producer // this transport's producers (send direction)
	consumers map[string]*consumer // this transport's consumers (receive direction)

	onClose func()
}

func (w *Worker) createTransport(clientID string, direction Direction) (TransportParams, error) {
	api := w.api

	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: w.iceServers(clientID)})
	if err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "failed to create ICE gatherer")
	}
	ice := api.NewICETransport(gatherer)
	cert, err := webrtc.GenerateCertificate(w.dtlsKey)
	if err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "failed to generate DTLS certificate")
	}
	dtls := api.NewDTLSTransport(ice, []webrtc.Certificate{*cert})

	gatherFinished := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			select {
			case <-gatherFinished:
			default:
				close(gatherFinished)
			}
		}
	})
	if err := gatherer.Gather(); err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "ICE gathering failed")
	}
	<-gatherFinished

	iceCandidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "failed to read local ICE candidates")
	}
	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "failed to read local ICE parameters")
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		return TransportParams{}, apierr.Wrap(apierr.Internal, err, "failed to read local DTLS parameters")
	}

	t := &transport{
		id:        uuid.NewString(),
		direction: direction,
		clientID:  clientID,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		producers: make(map[string]*producer),
		consumers: make(map[string]*consumer),
	}

	w.mu.Lock()
	w.transports[t.id] = t
	w.mu.Unlock()

	return TransportParams{
		ID:             t.id,
		ICEParameters:  toICEParameters(iceParams),
		ICECandidates:  toICECandidates(iceCandidates),
		DTLSParameters: toDTLSParameters(dtlsParams),
		SCTPParameters: SCTPParameters{Port: 5000, MaxMessageSize: 262144},
	}, nil
}

func (w *Worker) connectTransport(transportID string, remote DTLSParameters, remoteICE ICEParameters, remoteCandidates []ICECandidate) error {
	w.mu.RLock()
	t, ok := w.transports[transportID]
	w.mu.RUnlock()
	if !ok {
		return apierr.Newf(apierr.NotFound, "unknown transport %s", transportID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return apierr.New(apierr.Conflict, "transport already closed")
	}
	if t.connected {
		return apierr.New(apierr.Conflict, "transport already connected")
	}

	role := webrtc.ICERoleControlled
	if err := t.ice.SetRemoteCandidates(fromICECandidates(remoteCandidates)); err != nil {
		return apierr.Wrap(apierr.Conflict, err, "failed to set remote ICE candidates")
	}
	if _, err := t.ice.Start(nil, fromICEParameters(remoteICE), &role); err != nil {
		w.closeTransportLocked(t, "ice start failed")
		return apierr.Wrap(apierr.Conflict, err, "ICE negotiation failed")
	}
	if err := t.dtls.Start(fromDTLSParameters(remote)); err != nil {
		w.closeTransportLocked(t, "dtls start failed")
		return apierr.Wrap(apierr.Conflict, err, "DTLS handshake failed")
	}
	t.connected = true
	return nil
}

// closeTransportLocked closes a transport and cascades closure to every
// producer/consumer it owns (spec §4.8). Caller must hold t.mu.
func (w *Worker) closeTransportLocked(t *transport, reason string) {
	if t.closed {
		return
	}
	t.closed = true

	for _, p := range t.producers {
		w.closeProducerInternal(p, reason)
	}
	for _, c := range t.consumers {
		w.closeConsumerInternal(c)
	}
	_ = t.dtls.Stop()
	_ = t.ice.Stop()

	w.mu.Lock()
	delete(w.transports, t.id)
	w.mu.Unlock()

	if t.onClose != nil {
		t.onClose()
	}
}

func (w *Worker) closeTransport(transportID, reason string) error {
	w.mu.RLock()
	t, ok := w.transports[transportID]
	w.mu.RUnlock()
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	w.closeTransportLocked(t, reason)
	return nil
}

func toICEParameters(p webrtc.ICEParameters) ICEParameters {
	return ICEParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, ICELite: p.ICELite}
}

func fromICEParameters(p ICEParameters) webrtc.ICEParameters {
	return webrtc.ICEParameters{UsernameFragment: p.UsernameFragment, Password: p.Password, ICELite: p.ICELite}
}

func toICECandidates(cs []webrtc.ICECandidate) []ICECandidate {
	out := make([]ICECandidate, 0, len(cs))
	for _, c := range cs {
		out = append(out, ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Typ:        c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}

func fromICECandidates(cs []ICECandidate) []webrtc.ICECandidate {
	out := make([]webrtc.ICECandidate, 0, len(cs))
	for _, c := range cs {
		proto, _ := webrtc.NewICEProtocol(c.Protocol)
		typ, _ := webrtc.NewICECandidateType(c.Typ)
		out = append(out, webrtc.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			Address:    c.Address,
			Protocol:   proto,
			Port:       c.Port,
			Typ:        typ,
			TCPType:    c.TCPType,
		})
	}
	return out
}

func toDTLSParameters(p webrtc.DTLSParameters) DTLSParameters {
	out := DTLSParameters{Role: p.Role.String()}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}

func fromDTLSParameters(p DTLSParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	for _, fp := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return out
}
