// Package routing implements the Audio Routing Core: the policy layer
// atop the Media Worker that decides which (producer, subscriber) pairs
// are permitted and keeps the Media Worker's consumer set in sync with
// the Channel/Client Registries and the permission matrix (spec §4.7).
package routing

import (
	"sort"
	"sync"
	"time"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/channel"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/permission"
)

// producerEntry tracks one live producer's channel registrations and
// current consumer set, resolving the cyclic channel/producer/client
// relationship by id lookup rather than object reference (spec §9).
type producerEntry struct {
	ownerClientID string
	channelIDs    []string
	consumers     map[string]consumerInfo // subscriberClientID -> consumer
}

// consumerInfo remembers what Consume negotiated so a repeated call for the
// same (producer, subscriber) pair can return the real parameters instead of
// a zero value.
type consumerInfo struct {
	id     string
	params mediaworker.RTPParameters
	kind   string
}

// Table is the single shared routing state, reached only through this
// file's methods (spec §5: "no registry lock is held across a Media
// Worker call").
type Table struct {
	mu sync.Mutex

	worker   *mediaworker.Worker
	channels *channel.Registry
	clients  *client.Registry

	producers        map[string]*producerEntry // producerID -> entry
	receiveTransport map[string]string         // clientID -> receive transportID

	diagnostics *diagnosticsRing
}

// New constructs an empty Table bound to the shared registries and Worker.
func New(worker *mediaworker.Worker, channels *channel.Registry, clients *client.Registry) *Table {
	return &Table{
		worker:           worker,
		channels:         channels,
		clients:          clients,
		producers:        make(map[string]*producerEntry),
		receiveTransport: make(map[string]string),
		diagnostics:      newDiagnosticsRing(),
	}
}

// RegisterReceiveTransport records which transport a client will consume
// on, so future producer openings can be paired against it.
func (t *Table) RegisterReceiveTransport(clientID, transportID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiveTransport[clientID] = transportID
}

// eligibleSpeakChannels returns the channel ids owner currently has
// speak right in, among the channels it is a member of.
func eligibleSpeakChannels(owner client.Snapshot) []string {
	var out []string
	for _, chID := range owner.Channels {
		if permission.Allow(owner.Permissions, chID, true, permission.Speak) {
			out = append(out, chID)
		}
	}
	return out
}

// OpenProducer registers a new producer into every channel its owner
// currently has speak right in (spec §3 invariant 2), and returns the ids
// of subscriber clients that should receive a `producerOpened` advisory
// event (channel members with a listen right, excluding the owner).
func (t *Table) OpenProducer(producerID, ownerClientID string) ([]string, error) {
	owner, err := t.clients.Get(ownerClientID)
	if err != nil {
		return nil, err
	}
	channelIDs := eligibleSpeakChannels(owner)
	if len(channelIDs) == 0 {
		return nil, apierr.New(apierr.PermissionDenied, "client has no speak right in any channel")
	}

	for _, chID := range channelIDs {
		if err := t.channels.AddProducer(chID, producerID); err != nil {
			return nil, err
		}
	}

	t.mu.Lock()
	t.producers[producerID] = &producerEntry{
		ownerClientID: ownerClientID,
		channelIDs:    channelIDs,
		consumers:     make(map[string]consumerInfo),
	}
	t.mu.Unlock()

	subscribers := t.eligibleSubscribers(ownerClientID, channelIDs)
	t.diagnostics.record(decisionRecord{
		Kind: decisionOpen, ProducerID: producerID, OwnerID: ownerClientID,
		Subscribers: subscribers, ChannelIDs: channelIDs, At: time.Now(),
	})
	return subscribers, nil
}

// eligibleSubscribers returns, deduplicated and sorted for determinism,
// every member of channelIDs (other than excludeClientID) that currently
// has listen right in at least one of them.
func (t *Table) eligibleSubscribers(excludeClientID string, channelIDs []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, chID := range channelIDs {
		for _, memberID := range t.channels.MembersOf(chID) {
			if memberID == excludeClientID {
				continue
			}
			if _, ok := seen[memberID]; ok {
				continue
			}
			member, err := t.clients.Get(memberID)
			if err != nil || member.Status != client.StatusActive {
				continue
			}
			if permission.Allow(member.Permissions, chID, true, permission.Listen) {
				seen[memberID] = struct{}{}
				out = append(out, memberID)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Consume materializes the (producerID, subscriberClientID) pairing,
// idempotently — a second call for the same pair returns the existing
// consumer id rather than creating a duplicate (spec §4.7).
func (t *Table) Consume(subscriberClientID, producerID string, remoteCaps []mediaworker.RTPCodecCapability) (string, mediaworker.RTPParameters, string, error) {
	t.mu.Lock()
	entry, ok := t.producers[producerID]
	if !ok {
		t.mu.Unlock()
		return "", mediaworker.RTPParameters{}, "", apierr.Newf(apierr.NotFound, "unknown producer %s", producerID)
	}
	if existing, ok := entry.consumers[subscriberClientID]; ok {
		t.mu.Unlock()
		return existing.id, existing.params, existing.kind, nil
	}
	channelIDs := append([]string(nil), entry.channelIDs...)
	transportID, hasTransport := t.receiveTransport[subscriberClientID]
	t.mu.Unlock()

	if !hasTransport {
		return "", mediaworker.RTPParameters{}, "", apierr.New(apierr.BadRequest, "no receive transport for this session; call createTransport(receive) first")
	}

	subscriber, err := t.clients.Get(subscriberClientID)
	if err != nil {
		return "", mediaworker.RTPParameters{}, "", err
	}
	if !anyChannelGrantsListen(subscriber, channelIDs) {
		return "", mediaworker.RTPParameters{}, "", apierr.New(apierr.PermissionDenied, "no listen right for this producer's channels")
	}

	consumerID, params, consumerType, err := t.worker.Consume(transportID, producerID, remoteCaps, false)
	if err != nil {
		return "", mediaworker.RTPParameters{}, "", err
	}

	t.mu.Lock()
	if entry, ok = t.producers[producerID]; ok {
		entry.consumers[subscriberClientID] = consumerInfo{id: consumerID, params: params, kind: consumerType}
	}
	t.mu.Unlock()

	return consumerID, params, consumerType, nil
}

func anyChannelGrantsListen(c client.Snapshot, channelIDs []string) bool {
	for _, chID := range channelIDs {
		if permission.Allow(c.Permissions, chID, true, permission.Listen) {
			return true
		}
	}
	return false
}

// ProducerClosure describes one producer that closed and everyone who was
// consuming it, so the caller can emit `producerClosed` to each.
type ProducerClosure struct {
	ProducerID  string
	Subscribers []string
}

// CloseProducer tears down a producer and every consumer subscribed to
// it, removing it from every channel's producer set (spec §4.7: "when a
// producer is closed, close all its consumers before removing routing
// entries").
func (t *Table) CloseProducer(producerID string) ProducerClosure {
	t.mu.Lock()
	entry, ok := t.producers[producerID]
	if !ok {
		t.mu.Unlock()
		return ProducerClosure{ProducerID: producerID}
	}
	delete(t.producers, producerID)
	subscribers := make([]string, 0, len(entry.consumers))
	consumerIDs := make([]string, 0, len(entry.consumers))
	for sub, info := range entry.consumers {
		subscribers = append(subscribers, sub)
		consumerIDs = append(consumerIDs, info.id)
	}
	channelIDs := entry.channelIDs
	t.mu.Unlock()

	for _, consumerID := range consumerIDs {
		_ = t.worker.CloseConsumer(consumerID)
	}
	_ = t.worker.CloseProducer(producerID)
	for _, chID := range channelIDs {
		_ = t.channels.RemoveProducer(chID, producerID)
	}
	sort.Strings(subscribers)
	t.diagnostics.record(decisionRecord{
		Kind: decisionClose, ProducerID: producerID,
		Subscribers: subscribers, ChannelIDs: channelIDs, At: time.Now(),
	})
	return ProducerClosure{ProducerID: producerID, Subscribers: subscribers}
}

// ReconcilePermissions recomputes clientID's owned producers against its
// current permission matrix — fully closing a producer that has lost
// speak right in all of its channels, narrowing one that lost it in some
// — and recomputes clientID's own consumer subscriptions against its
// current listen rights, silently closing any that are no longer
// permitted (spec §4.8: "producers ... closed; consumers for channels
// whose listen right was revoked are closed"). Returns one ProducerClosure
// per fully-closed producer, for `producerClosed` fan-out.
func (t *Table) ReconcilePermissions(clientID string) []ProducerClosure {
	snap, err := t.clients.Get(clientID)
	if err != nil {
		return nil
	}
	stillEligible := eligibleChannelSet(eligibleSpeakChannels(snap))

	t.mu.Lock()
	var ownedToClose []string
	var narrowed [][2]string // (producerID, channelID) registrations to drop
	for producerID, entry := range t.producers {
		if entry.ownerClientID != clientID {
			continue
		}
		var remaining []string
		for _, chID := range entry.channelIDs {
			if stillEligible[chID] {
				remaining = append(remaining, chID)
			}
		}
		if len(remaining) == 0 {
			ownedToClose = append(ownedToClose, producerID)
		} else {
			for _, chID := range entry.channelIDs {
				if !stillEligible[chID] {
					narrowed = append(narrowed, [2]string{producerID, chID})
				}
			}
			entry.channelIDs = remaining
		}
	}

	var consumersToClose []string
	for _, entry := range t.producers {
		info, subscribed := entry.consumers[clientID]
		if !subscribed {
			continue
		}
		if !anyChannelGrantsListenMatrix(snap.Permissions, entry.channelIDs) {
			delete(entry.consumers, clientID)
			consumersToClose = append(consumersToClose, info.id)
		}
	}
	t.mu.Unlock()

	for _, reg := range narrowed {
		_ = t.channels.RemoveProducer(reg[1], reg[0])
	}
	closures := make([]ProducerClosure, 0, len(ownedToClose))
	for _, producerID := range ownedToClose {
		closures = append(closures, t.CloseProducer(producerID))
	}
	for _, consumerID := range consumersToClose {
		_ = t.worker.CloseConsumer(consumerID)
	}
	return closures
}

func eligibleChannelSet(channelIDs []string) map[string]bool {
	out := make(map[string]bool, len(channelIDs))
	for _, id := range channelIDs {
		out[id] = true
	}
	return out
}

func anyChannelGrantsListenMatrix(m permission.Matrix, channelIDs []string) bool {
	for _, chID := range channelIDs {
		if permission.Allow(m, chID, true, permission.Listen) {
			return true
		}
	}
	return false
}

// ProducerOwner returns the owning client id and current channel
// registrations for producerID, for the active-speaker observer's
// producer-to-channel fan-out (spec §4.7).
func (t *Table) ProducerOwner(producerID string) (string, []string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.producers[producerID]
	if !ok {
		return "", nil, false
	}
	return entry.ownerClientID, append([]string(nil), entry.channelIDs...), true
}

// ReconcileAllOwnedBy fully closes every producer clientID owns and drops
// every consumer subscription clientID held, regardless of current
// permissions — the unilateral cleanup a session disconnect requires
// (spec §4.8: "close all that client's transports (cascade...)"). Returns
// one ProducerClosure per closed producer for `producerClosed` fan-out.
func (t *Table) ReconcileAllOwnedBy(clientID string) []ProducerClosure {
	t.mu.Lock()
	var owned []string
	var subscribedConsumers []string
	for producerID, entry := range t.producers {
		if entry.ownerClientID == clientID {
			owned = append(owned, producerID)
			continue
		}
		if info, ok := entry.consumers[clientID]; ok {
			delete(entry.consumers, clientID)
			subscribedConsumers = append(subscribedConsumers, info.id)
		}
	}
	delete(t.receiveTransport, clientID)
	t.mu.Unlock()

	for _, consumerID := range subscribedConsumers {
		_ = t.worker.CloseConsumer(consumerID)
	}

	closures := make([]ProducerClosure, 0, len(owned))
	for _, producerID := range owned {
		closures = append(closures, t.CloseProducer(producerID))
	}
	return closures
}

// Pairs returns a snapshot of all current (producerID, subscriberClientID)
// pairings, for the routing-invariant tests and admin diagnostics.
func (t *Table) Pairs() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.producers))
	for producerID, entry := range t.producers {
		subs := make([]string, 0, len(entry.consumers))
		for sub := range entry.consumers {
			subs = append(subs, sub)
		}
		sort.Strings(subs)
		out[producerID] = subs
	}
	return out
}
