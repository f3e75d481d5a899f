package mediaworker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w, err := New(Config{}, nil)
	require.NoError(t, err)
	return w
}

func TestProducerLevelDBFSPrefersExtension(t *testing.T) {
	level := 10
	p := &producer{lastLevel: &level, lastPacketAt: time.Now()}
	assert.Equal(t, -10.0, producerLevelDBFS(p))
}

func TestProducerLevelDBFSFallsBackToPacketRate(t *testing.T) {
	p := &producer{lastPacketAt: time.Now()}
	assert.Equal(t, -30.0, producerLevelDBFS(p))

	p.lastPacketAt = time.Now().Add(-time.Second)
	assert.Equal(t, -100.0, producerLevelDBFS(p))
}

func TestSampleProducersEmitsSpeakingThenSilence(t *testing.T) {
	w := newTestWorker(t)
	now := time.Now()

	level := 5 // -5 dBFS, above a -40 dBFS threshold
	p := &producer{id: "p1", lastLevel: &level, lastPacketAt: now}
	w.producers["p1"] = p

	var events []SpeakingEvent
	emit := func(ev SpeakingEvent) { events = append(events, ev) }
	states := make(map[string]*speakerState)

	w.sampleProducers(now, -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	require.Len(t, events, 1)
	assert.Equal(t, "p1", events[0].ProducerID)
	assert.False(t, events[0].Silence)

	// Same level again: already marked speaking, no duplicate event.
	w.sampleProducers(now.Add(10*time.Millisecond), -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	assert.Len(t, events, 1)

	// Producer goes silent; no event until holdOff elapses.
	quiet := 100 // -100 dBFS, below the threshold
	p.lastLevel = &quiet
	w.sampleProducers(now.Add(20*time.Millisecond), -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	assert.Len(t, events, 1)

	w.sampleProducers(now.Add(300*time.Millisecond), -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	require.Len(t, events, 2)
	assert.True(t, events[1].Silence)
}

func TestSampleProducersEmitsSilenceWhenProducerDisappears(t *testing.T) {
	w := newTestWorker(t)
	now := time.Now()

	level := 5
	p := &producer{id: "p1", lastLevel: &level, lastPacketAt: now}
	w.producers["p1"] = p

	var events []SpeakingEvent
	emit := func(ev SpeakingEvent) { events = append(events, ev) }
	states := make(map[string]*speakerState)

	w.sampleProducers(now, -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	require.Len(t, events, 1)

	delete(w.producers, "p1")
	w.sampleProducers(now.Add(10*time.Millisecond), -40, 100*time.Millisecond, 200*time.Millisecond, states, emit)
	require.Len(t, events, 2)
	assert.True(t, events[1].Silence)
}
