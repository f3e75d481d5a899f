package mediaworker

import (
	"context"
	"time"

	"github.com/pion/rtp"
)

// readAudioLevelExtension decodes the RFC 6464 one-byte client-to-mixer
// audio level header extension when the client negotiated it, returning
// -dBov (0 = loudest, 127 = silence) per the RFC's encoding.
func readAudioLevelExtension(pkt *rtp.Packet) (int, bool) {
	ext := pkt.GetExtension(audioLevelExtensionID)
	if len(ext) == 0 {
		return 0, false
	}
	// Bit 0 of the single payload byte is the "voice activity" flag;
	// bits 1-7 are the level (0 = loudest).
	level := int(ext[0] & 0x7f)
	return level, true
}

// audioLevelExtensionID is the fixed RTP header extension id the observer
// reads audioLevelExtensionURI from. createTransport does not offer or
// negotiate header extension ids.
const audioLevelExtensionID = 1

// speakerState tracks one producer's rolling activity for hold-off logic.
type speakerState struct {
	speaking    bool
	lastAboveAt time.Time
}

// observeSpeakingProducers runs the single observer shared by all
// channels (spec §4.1): every interval, it samples each live producer's
// audio level (from the RFC 6464 extension when present, else a
// packet-arrival-rate heuristic — pion/webrtc cannot decode Opus to get
// a true RMS) and emits a SpeakingEvent on becoming louder than threshold
// or on falling silent for holdOff.
func (w *Worker) observeSpeakingProducers(ctx context.Context, thresholdDBFS float64, interval, holdOff time.Duration, emit func(SpeakingEvent)) {
	states := make(map[string]*speakerState)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.sampleProducers(now, thresholdDBFS, interval, holdOff, states, emit)
		}
	}
}

func (w *Worker) sampleProducers(now time.Time, thresholdDBFS float64, interval, holdOff time.Duration, states map[string]*speakerState, emit func(SpeakingEvent)) {
	w.mu.RLock()
	producers := make([]*producer, 0, len(w.producers))
	for _, p := range w.producers {
		producers = append(producers, p)
	}
	w.mu.RUnlock()

	seen := make(map[string]struct{}, len(producers))
	for _, p := range producers {
		p.mu.RLock()
		level := producerLevelDBFS(p)
		lastPacketAt := p.lastPacketAt
		p.mu.RUnlock()

		seen[p.id] = struct{}{}
		st, ok := states[p.id]
		if !ok {
			st = &speakerState{}
			states[p.id] = st
		}

		above := level > thresholdDBFS && now.Sub(lastPacketAt) < 2*interval
		if above {
			st.lastAboveAt = now
			if !st.speaking {
				st.speaking = true
				emit(SpeakingEvent{ProducerID: p.id, VolumeDBFS: level, At: now})
			}
			continue
		}
		if st.speaking && now.Sub(st.lastAboveAt) >= holdOff {
			st.speaking = false
			emit(SpeakingEvent{ProducerID: p.id, Silence: true, At: now})
		}
	}

	for id, st := range states {
		if _, ok := seen[id]; !ok && st.speaking {
			st.speaking = false
			emit(SpeakingEvent{ProducerID: id, Silence: true, At: now})
			delete(states, id)
		}
	}
}

// producerLevelDBFS estimates a producer's current loudness. When the
// client negotiated the audio-level extension this is a direct
// conversion from dBov; otherwise it falls back to a packet-rate proxy
// (a steadily arriving 20ms-framed stream implies active audio, silence
// suppression/DTX implies quiet).
func producerLevelDBFS(p *producer) float64 {
	if p.lastLevel != nil {
		return -float64(*p.lastLevel)
	}
	if time.Since(p.lastPacketAt) < 40*time.Millisecond {
		return -30.0 // arriving at full frame cadence: treat as speech-level
	}
	return -100.0
}
