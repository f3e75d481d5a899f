// Package client implements the Client Registry: client identity, session
// handle, admin flag, channel memberships, permission matrix, per-channel
// user settings, and the pending-authorization queue (spec §4.3).
package client

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/permission"
)

// Status is the lifecycle state of a client (spec §3).
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusClosed  Status = "closed"
)

// UserSettings are this client's per-channel listen preferences. They
// never mutate producer/server audio state (spec §4.3).
type UserSettings struct {
	Muted  bool
	Volume float64
}

// DefaultUserSettings is seeded on authorize/addToChannel.
func DefaultUserSettings() UserSettings {
	return UserSettings{Muted: false, Volume: 1.0}
}

// ClampVolume bounds v to [0, 1] (spec §8 boundary behavior).
func ClampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Client is the full internal record.
type Client struct {
	ID            string
	DisplayName   string
	SessionHandle string // opaque handle of the live signaling session; "" if none
	AdminFlag     bool
	Status        Status
	Channels      []string // ordered set of channel ids
	Permissions   permission.Matrix
	UserSettings  map[string]UserSettings // channel id -> settings
}

// Snapshot is an immutable copy safe to hand outside the registry lock.
type Snapshot struct {
	ID            string
	DisplayName   string
	SessionHandle string
	AdminFlag     bool
	Status        Status
	Channels      []string
	Permissions   permission.Matrix
	UserSettings  map[string]UserSettings
}

func (c *Client) snapshot() Snapshot {
	chans := make([]string, len(c.Channels))
	copy(chans, c.Channels)
	settings := make(map[string]UserSettings, len(c.UserSettings))
	for k, v := range c.UserSettings {
		settings[k] = v
	}
	return Snapshot{
		ID:            c.ID,
		DisplayName:   c.DisplayName,
		SessionHandle: c.SessionHandle,
		AdminFlag:     c.AdminFlag,
		Status:        c.Status,
		Channels:      chans,
		Permissions:   c.Permissions.Clone(),
		UserSettings:  settings,
	}
}

func (c *Client) isMember(channelID string) bool {
	for _, id := range c.Channels {
		if id == channelID {
			return true
		}
	}
	return false
}

func (c *Client) removeChannel(channelID string) {
	out := c.Channels[:0]
	for _, id := range c.Channels {
		if id != channelID {
			out = append(out, id)
		}
	}
	c.Channels = out
	delete(c.UserSettings, channelID)
}

// Registry owns all Client state, serialized behind a single RWMutex.
type Registry struct {
	mu            sync.RWMutex
	clients       map[string]*Client // by id
	bySession     map[string]string  // session handle -> client id
	pendingOrder  []string           // ids in enrollment order
}

// NewRegistry creates an empty client registry.
func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[string]*Client),
		bySession: make(map[string]string),
	}
}

// EnrollPending creates a new client in pending state and queues it for
// admin review (spec §4.3).
func (r *Registry) EnrollPending(displayName, sessionHandle string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Client{
		ID:            uuid.NewString(),
		DisplayName:   displayName,
		SessionHandle: sessionHandle,
		Status:        StatusPending,
		Permissions:   permission.NewMatrix(),
		UserSettings:  make(map[string]UserSettings),
	}
	r.clients[c.ID] = c
	if sessionHandle != "" {
		r.bySession[sessionHandle] = c.ID
	}
	r.pendingOrder = append(r.pendingOrder, c.ID)
	return c.snapshot()
}

// EnrollActiveAdmin creates a client that is immediately active with the
// admin flag set (the adminAuthenticate path, spec §4.5).
func (r *Registry) EnrollActiveAdmin(displayName, sessionHandle string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &Client{
		ID:            uuid.NewString(),
		DisplayName:   displayName,
		SessionHandle: sessionHandle,
		AdminFlag:     true,
		Status:        StatusActive,
		Permissions:   permission.Matrix{SpeakToAll: true, ListenToAll: true, SpeakTo: map[string]bool{}, ListenTo: map[string]bool{}},
		UserSettings:  make(map[string]UserSettings),
	}
	r.clients[c.ID] = c
	if sessionHandle != "" {
		r.bySession[sessionHandle] = c.ID
	}
	return c.snapshot()
}

// Authorize moves a pending client to active, seeding membership and
// default user settings, and returns the channel ids it was placed into
// so the caller can wire it into the Channel Registry.
func (r *Registry) Authorize(clientID string, channelIDs []string, perms permission.Matrix) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok || c.Status != StatusPending {
		return Snapshot{}, apierr.Newf(apierr.NotFound, "no pending client %s", clientID)
	}

	c.Status = StatusActive
	c.Permissions = perms
	c.Channels = append([]string(nil), channelIDs...)
	c.UserSettings = make(map[string]UserSettings, len(channelIDs))
	for _, chID := range channelIDs {
		c.UserSettings[chID] = DefaultUserSettings()
	}
	r.removeFromPendingOrder(clientID)
	return c.snapshot(), nil
}

// Reject drops a pending client entirely.
func (r *Registry) Reject(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok || c.Status != StatusPending {
		return apierr.Newf(apierr.NotFound, "no pending client %s", clientID)
	}
	c.Status = StatusClosed
	delete(r.clients, clientID)
	if c.SessionHandle != "" {
		delete(r.bySession, c.SessionHandle)
	}
	r.removeFromPendingOrder(clientID)
	return nil
}

func (r *Registry) removeFromPendingOrder(clientID string) {
	out := r.pendingOrder[:0]
	for _, id := range r.pendingOrder {
		if id != clientID {
			out = append(out, id)
		}
	}
	r.pendingOrder = out
}

// PendingList returns snapshots of all clients awaiting admin decision,
// in enrollment order.
func (r *Registry) PendingList() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.pendingOrder))
	for _, id := range r.pendingOrder {
		if c, ok := r.clients[id]; ok {
			out = append(out, c.snapshot())
		}
	}
	return out
}

// PermissionPatch describes a partial update to a client's matrix; nil
// fields are left unchanged.
type PermissionPatch struct {
	SpeakToAll  *bool
	ListenToAll *bool
	SpeakTo     map[string]bool // merged in, not replaced
	ListenTo    map[string]bool
}

// UpdatePermissions applies patch to clientID's matrix and returns a copy
// of the new matrix, so the caller (Audio Routing Core) can reconcile
// producers and consumers. It does not report which channels changed.
func (r *Registry) UpdatePermissions(clientID string, patch PermissionPatch) (permission.Matrix, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return permission.Matrix{}, apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	if patch.SpeakToAll != nil {
		c.Permissions.SpeakToAll = *patch.SpeakToAll
	}
	if patch.ListenToAll != nil {
		c.Permissions.ListenToAll = *patch.ListenToAll
	}
	for k, v := range patch.SpeakTo {
		c.Permissions.SpeakTo[k] = v
	}
	for k, v := range patch.ListenTo {
		c.Permissions.ListenTo[k] = v
	}
	return c.Permissions.Clone(), nil
}

// AddToChannel appends channelID to the client's membership set and seeds
// default user settings for it. Idempotent.
func (r *Registry) AddToChannel(clientID, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	if c.isMember(channelID) {
		return nil
	}
	c.Channels = append(c.Channels, channelID)
	c.UserSettings[channelID] = DefaultUserSettings()
	return nil
}

// RemoveFromChannel removes channelID from the client's membership set
// and drops its user settings entry (spec invariant: domain(userSettings)
// == channels(c)). Idempotent.
func (r *Registry) RemoveFromChannel(clientID, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	c.removeChannel(channelID)
	return nil
}

// SetChannelMute sets the mute flag for channelID. The client must be a
// member of channelID.
func (r *Registry) SetChannelMute(clientID, channelID string, muted bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	s, ok := c.UserSettings[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s is not a member of channel %s", clientID, channelID)
	}
	s.Muted = muted
	c.UserSettings[channelID] = s
	return nil
}

// SetChannelVolume sets the volume for channelID, clamped to [0, 1].
func (r *Registry) SetChannelVolume(clientID, channelID string, volume float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	s, ok := c.UserSettings[channelID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s is not a member of channel %s", clientID, channelID)
	}
	s.Volume = ClampVolume(volume)
	c.UserSettings[channelID] = s
	return nil
}

// Close transitions a client to closed and drops its live indices. Safe
// to call twice (spec §8: "closing a session twice is safe").
func (r *Registry) Close(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok || c.Status == StatusClosed {
		return nil
	}
	if c.SessionHandle != "" {
		delete(r.bySession, c.SessionHandle)
	}
	c.Status = StatusClosed
	c.SessionHandle = ""
	r.removeFromPendingOrder(clientID)
	return nil
}

// Get returns a snapshot by client id.
func (r *Registry) Get(clientID string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[clientID]
	if !ok {
		return Snapshot{}, apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	return c.snapshot(), nil
}

// GetBySession returns a snapshot by live session handle.
func (r *Registry) GetBySession(sessionHandle string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionHandle]
	if !ok {
		return Snapshot{}, apierr.New(apierr.NotFound, "no client for session")
	}
	c := r.clients[id]
	return c.snapshot(), nil
}

// BindSession associates sessionHandle with clientID, used on
// re-connection of a remembered identity (spec §3: "re-connection ...
// creates a new session handle").
func (r *Registry) BindSession(clientID, sessionHandle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[clientID]
	if !ok {
		return apierr.Newf(apierr.NotFound, "client %s not found", clientID)
	}
	if c.SessionHandle != "" {
		delete(r.bySession, c.SessionHandle)
	}
	c.SessionHandle = sessionHandle
	r.bySession[sessionHandle] = clientID
	return nil
}

// List returns every client snapshot, sorted by display name.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayName < out[j].DisplayName })
	return out
}
