// Package channel implements the Channel Registry: an in-memory mapping of
// channel id to channel record, serialized behind a single RWMutex in the
// style of the router's other registries.
package channel

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

// SystemChannelName is the name of the always-present, undeletable channel.
const SystemChannelName = "system"

// Channel is the full internal record. Members/Producers are owned by the
// Registry; callers outside this package only ever see a Snapshot.
type Channel struct {
	ID          string
	Name        string
	Description string
	Members     map[string]struct{}
	Producers   map[string]struct{}
	system      bool
}

// Snapshot is the sanitized, read-only view returned by Get/List: ids,
// names, descriptions, and member/producer counts — never the internal
// set objects (spec §4.2).
type Snapshot struct {
	ID            string
	Name          string
	Description   string
	MemberCount   int
	ProducerCount int
	System        bool
}

func (c *Channel) snapshot() Snapshot {
	return Snapshot{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		MemberCount:   len(c.Members),
		ProducerCount: len(c.Producers),
		System:        c.system,
	}
}

// Registry owns all Channel state. All mutating operations are serialized
// under mu; no I/O happens while the lock is held.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry creates a registry seeded with the mandatory system channel
// (spec §3: "at least one system channel always exists").
func NewRegistry() *Registry {
	r := &Registry{channels: make(map[string]*Channel)}
	sys := &Channel{
		ID:        uuid.NewString(),
		Name:      SystemChannelName,
		Members:   make(map[string]struct{}),
		Producers: make(map[string]struct{}),
		system:    true,
	}
	r.channels[sys.ID] = sys
	return r
}

// SystemChannelID returns the id of the protected system channel.
func (r *Registry) SystemChannelID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.channels {
		if c.system {
			return c.ID
		}
	}
	return ""
}

// Create adds a new channel with a fresh id. An empty name fails with
// BadRequest; a name already used by another channel fails with Conflict.
func (r *Registry) Create(name, description string) (Snapshot, error) {
	if name == "" {
		return Snapshot{}, apierr.New(apierr.BadRequest, "channel name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.channels {
		if c.Name == name {
			return Snapshot{}, apierr.Newf(apierr.Conflict, "channel name %q already in use", name)
		}
	}

	c := &Channel{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Members:     make(map[string]struct{}),
		Producers:   make(map[string]struct{}),
	}
	r.channels[c.ID] = c
	return c.snapshot(), nil
}

// UpdateMetadata changes name/description of an existing channel.
func (r *Registry) UpdateMetadata(id, name, description string) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[id]
	if !ok {
		return Snapshot{}, apierr.Newf(apierr.NotFound, "channel %s not found", id)
	}
	if name != "" {
		c.Name = name
	}
	c.Description = description
	return c.snapshot(), nil
}

// Delete removes a channel. The system channel can never be deleted
// (spec §3/§8: fails with Conflict, registry unchanged).
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[id]
	if !ok {
		return apierr.Newf(apierr.NotFound, "channel %s not found", id)
	}
	if c.system {
		return apierr.New(apierr.Conflict, "the system channel cannot be deleted")
	}
	delete(r.channels, id)
	return nil
}

// Get returns the sanitized snapshot of one channel.
func (r *Registry) Get(id string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[id]
	if !ok {
		return Snapshot{}, apierr.Newf(apierr.NotFound, "channel %s not found", id)
	}
	return c.snapshot(), nil
}

// List returns every channel's sanitized snapshot, sorted by name for
// deterministic ordering.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.channels))
	for _, c := range r.channels {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AddMember adds clientID to the channel's member set. Idempotent.
func (r *Registry) AddMember(channelID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "channel %s not found", channelID)
	}
	c.Members[clientID] = struct{}{}
	return nil
}

// RemoveMember removes clientID from the channel's member set. Idempotent.
func (r *Registry) RemoveMember(channelID, clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "channel %s not found", channelID)
	}
	delete(c.Members, clientID)
	return nil
}

// AddProducer records producerID as publishing into channelID. The
// invariant that owner must have speak+membership is enforced by the
// caller (Audio Routing Core / Client Registry), not here.
func (r *Registry) AddProducer(channelID, producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "channel %s not found", channelID)
	}
	c.Producers[producerID] = struct{}{}
	return nil
}

// RemoveProducer drops producerID from channelID's producer set. Idempotent.
func (r *Registry) RemoveProducer(channelID, producerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.channels[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "channel %s not found", channelID)
	}
	delete(c.Producers, producerID)
	return nil
}

// IsMember reports whether clientID currently belongs to channelID.
func (r *Registry) IsMember(channelID, clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[channelID]
	if !ok {
		return false
	}
	_, member := c.Members[clientID]
	return member
}

// Exists reports whether channelID is a known channel.
func (r *Registry) Exists(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channelID]
	return ok
}

// MembersOf returns a copy of the member id set for channelID.
func (r *Registry) MembersOf(channelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.Members))
	for id := range c.Members {
		out = append(out, id)
	}
	return out
}

// ProducersOf returns a copy of the producer id set for channelID.
func (r *Registry) ProducersOf(channelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.Producers))
	for id := range c.Producers {
		out = append(out, id)
	}
	return out
}
