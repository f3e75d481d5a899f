package routing

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// decisionKind distinguishes the routing decisions recorded in the replay
// buffer, so a crash-diagnostics dump can tell open from close without
// re-deriving it from field presence.
type decisionKind string

const (
	decisionOpen  decisionKind = "open"
	decisionClose decisionKind = "close"
)

// decisionRecord is one entry in the replay buffer: enough to reconstruct
// why a (producer, subscriber) pairing existed or stopped existing, without
// reaching back into the live Table (which may have moved on by the time a
// diagnostics dump is read).
type decisionRecord struct {
	Kind        decisionKind `msgpack:"kind"`
	ProducerID  string       `msgpack:"producerId"`
	OwnerID     string       `msgpack:"ownerId,omitempty"`
	Subscribers []string     `msgpack:"subscribers,omitempty"`
	ChannelIDs  []string     `msgpack:"channelIds,omitempty"`
	At          time.Time    `msgpack:"at"`
}

// diagnosticsRingSize bounds memory use; it is not a spec requirement, only
// a bounded debug aid (SPEC_FULL.md §9).
const diagnosticsRingSize = 256

// diagnosticsRing is a fixed-size ring buffer of recent routing decisions,
// encoded with msgpack so a dump can be written to disk or shipped without
// re-deriving the in-memory Table's shape.
type diagnosticsRing struct {
	mu     sync.Mutex
	buf    []decisionRecord
	cursor int
	filled bool
}

func newDiagnosticsRing() *diagnosticsRing {
	return &diagnosticsRing{buf: make([]decisionRecord, diagnosticsRingSize)}
}

func (r *diagnosticsRing) record(rec decisionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.cursor] = rec
	r.cursor = (r.cursor + 1) % diagnosticsRingSize
	if r.cursor == 0 {
		r.filled = true
	}
}

// snapshot returns the recorded decisions in chronological order.
func (r *diagnosticsRing) snapshot() []decisionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.filled {
		out := make([]decisionRecord, r.cursor)
		copy(out, r.buf[:r.cursor])
		return out
	}
	out := make([]decisionRecord, diagnosticsRingSize)
	copy(out, r.buf[r.cursor:])
	copy(out[diagnosticsRingSize-r.cursor:], r.buf[:r.cursor])
	return out
}

// DumpDiagnostics msgpack-encodes the current replay buffer for a crash
// report or admin debug endpoint. Decoding is left to whatever reads the
// dump offline; this package only ever writes.
func (t *Table) DumpDiagnostics() ([]byte, error) {
	return msgpack.Marshal(t.diagnostics.snapshot())
}
