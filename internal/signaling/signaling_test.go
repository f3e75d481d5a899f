package signaling

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-chat/intercom-router/internal/admission"
	"github.com/concord-chat/intercom-router/internal/channel"
	"github.com/concord-chat/intercom-router/internal/client"
	"github.com/concord-chat/intercom-router/internal/mediaworker"
	"github.com/concord-chat/intercom-router/internal/routing"
)

const testTokenSecret = "01234567890123456789012345678901"

func newTestHub(t *testing.T) (*Hub, *channel.Registry, *client.Registry) {
	t.Helper()
	channels := channel.NewRegistry()
	clients := client.NewRegistry()
	worker, err := mediaworker.New(mediaworker.Config{}, nil)
	require.NoError(t, err)
	table := routing.New(worker, channels, clients)
	adm := admission.New("wire", "key", clients)
	tokens, err := NewTokenManager(testTokenSecret)
	require.NoError(t, err)
	hub := NewHub(adm, channels, clients, worker, table, tokens, nil, zerolog.Nop())
	return hub, channels, clients
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	next uint64
}

func dialTestClient(t *testing.T, url string) *testClient {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	return &testClient{t: t, conn: conn}
}

func (c *testClient) request(event string, payload interface{}) Envelope {
	c.t.Helper()
	c.next++
	id := c.next
	raw, err := json.Marshal(payload)
	require.NoError(c.t, err)
	env := Envelope{Event: event, ID: &id, Payload: raw}
	require.NoError(c.t, c.conn.WriteJSON(env))

	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var resp Envelope
		require.NoError(c.t, c.conn.ReadJSON(&resp))
		if resp.ID != nil && *resp.ID == id {
			return resp
		}
		// an event arrived ahead of our response; keep reading
	}
}

func (c *testClient) nextEvent() Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(c.t, c.conn.ReadJSON(&env))
	return env
}

func TestAuthenticateThenRequestBeforeActiveIsUnauthorized(t *testing.T) {
	hub, _, _ := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()

	resp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	require.NotNil(t, resp.Ok)
	assert.True(t, *resp.Ok)
	var authResult authenticateResult
	require.NoError(t, json.Unmarshal(resp.Result, &authResult))
	assert.Equal(t, "pending", authResult.Status)
	assert.NotEmpty(t, authResult.SessionToken)

	resp = bob.request(EventGetRTPCaps, struct{}{})
	require.NotNil(t, resp.Ok)
	assert.False(t, *resp.Ok)
	assert.Equal(t, "Unauthorized", resp.Error.Kind)
}

func TestAuthenticateWrongSecretUnauthorized(t *testing.T) {
	hub, _, _ := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()

	resp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wrong"})
	require.NotNil(t, resp.Ok)
	assert.False(t, *resp.Ok)
	assert.Equal(t, "Unauthorized", resp.Error.Kind)
}

// TestHappyPathAdminAuthorizesPendingClient drives the S1 scenario up to
// authorization: admin authenticates, bob authenticates (pending), admin
// receives pendingClient, admin authorizes bob into "main", bob receives
// authorized.
func TestHappyPathAdminAuthorizesPendingClient(t *testing.T) {
	hub, channels, clients := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()

	adminResp := admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})
	require.True(t, *adminResp.Ok)
	var adminResult authenticateResult
	require.NoError(t, json.Unmarshal(adminResp.Result, &adminResult))
	assert.True(t, adminResult.AdminFlag)

	mainCh, err := channels.Create("main", "")
	require.NoError(t, err)

	bobResp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	require.True(t, *bobResp.Ok)
	var bobResult authenticateResult
	require.NoError(t, json.Unmarshal(bobResp.Result, &bobResult))
	assert.Equal(t, "pending", bobResult.Status)

	pendingEvent := admin.nextEvent()
	assert.Equal(t, EventPendingClient, pendingEvent.Event)
	var pending pendingClientPayload
	require.NoError(t, json.Unmarshal(pendingEvent.Payload, &pending))
	assert.Equal(t, bobResult.ClientID, pending.ClientID)

	authResp := admin.request(EventAuthorizePending, authorizePendingPayload{
		ClientID: bobResult.ClientID,
		Channels: []string{mainCh.ID},
		Permissions: wirePermissions{
			SpeakTo:  map[string]bool{mainCh.ID: true},
			ListenTo: map[string]bool{mainCh.ID: true},
		},
	})
	require.True(t, *authResp.Ok)

	authorizedEvent := bob.nextEvent()
	assert.Equal(t, EventAuthorized, authorizedEvent.Event)

	snap, err := clients.Get(bobResult.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.StatusActive, snap.Status)
	assert.True(t, channels.IsMember(mainCh.ID, bobResult.ClientID))
}

func TestRejectPendingNotifiesClient(t *testing.T) {
	hub, _, clients := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()

	admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})

	bobResp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	var bobResult authenticateResult
	require.NoError(t, json.Unmarshal(bobResp.Result, &bobResult))
	admin.nextEvent() // pendingClient

	rejResp := admin.request(EventRejectPending, rejectPendingPayload{ClientID: bobResult.ClientID})
	require.True(t, *rejResp.Ok)

	rejectedEvent := bob.nextEvent()
	assert.Equal(t, EventRejected, rejectedEvent.Event)

	_, err := clients.Get(bobResult.ClientID)
	require.Error(t, err)
}

func TestDeleteSystemChannelIsConflict(t *testing.T) {
	hub, channels, _ := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})

	resp := admin.request(EventDeleteChannel, channelPayload{ChannelID: channels.SystemChannelID()})
	require.False(t, *resp.Ok)
	assert.Equal(t, "Conflict", resp.Error.Kind)
}

func TestNonAdminCannotCreateChannel(t *testing.T) {
	hub, _, _ := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})

	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()
	bobResp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	var bobResult authenticateResult
	require.NoError(t, json.Unmarshal(bobResp.Result, &bobResult))
	admin.nextEvent() // pendingClient

	authResp := admin.request(EventAuthorizePending, authorizePendingPayload{ClientID: bobResult.ClientID, Channels: nil, Permissions: wirePermissions{}})
	require.True(t, *authResp.Ok)
	bob.nextEvent() // authorized

	resp := bob.request(EventCreateChannel, channelPayload{Name: "side"})
	require.False(t, *resp.Ok)
	assert.Equal(t, "PermissionDenied", resp.Error.Kind)
}

// TestUpdatePermissionsRevokesSpeakAndClosesProducer drives the S2 scenario
// over the real websocket wire: after bob is authorized into "main" with
// speak+listen and has an open producer, the admin sends updatePermissions
// revoking his speak right, and bob's producer must close. The producer is
// seeded directly via the routing table (as the routing package's own tests
// do) rather than through createTransport/produce, since those exercise a
// real pion/webrtc transport this test has no need to drive; fan-out to
// subscribers on closure is covered at the routing layer by
// TestReconcilePermissionsClosesProducerWhenSpeakRevoked and
// TestReconcilePermissionsClosesConsumerWhenListenRevoked.
func TestUpdatePermissionsRevokesSpeakAndClosesProducer(t *testing.T) {
	hub, channels, clients := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()

	adminResp := admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})
	var adminResult authenticateResult
	require.NoError(t, json.Unmarshal(adminResp.Result, &adminResult))

	mainCh, err := channels.Create("main", "")
	require.NoError(t, err)

	bobResp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	var bobResult authenticateResult
	require.NoError(t, json.Unmarshal(bobResp.Result, &bobResult))
	admin.nextEvent() // pendingClient

	authResp := admin.request(EventAuthorizePending, authorizePendingPayload{
		ClientID: bobResult.ClientID,
		Channels: []string{mainCh.ID},
		Permissions: wirePermissions{
			SpeakTo:  map[string]bool{mainCh.ID: true},
			ListenTo: map[string]bool{mainCh.ID: true},
		},
	})
	require.True(t, *authResp.Ok)
	bob.nextEvent() // authorized

	subs, err := hub.routing.OpenProducer("prod-bob", bobResult.ClientID)
	require.NoError(t, err)
	require.Empty(t, subs) // bob is the only member of main; the admin never joined it

	revokeResp := admin.request(EventUpdatePermissions, updatePermissionsPayload{
		ClientID: bobResult.ClientID,
		SpeakTo:  map[string]bool{mainCh.ID: false},
	})
	require.True(t, *revokeResp.Ok)
	var permResult permissionsResult
	require.NoError(t, json.Unmarshal(revokeResp.Result, &permResult))
	assert.False(t, permResult.Permissions.SpeakTo[mainCh.ID])

	pairs := hub.routing.Pairs()
	_, stillOpen := pairs["prod-bob"]
	assert.False(t, stillOpen)
}

// TestConsumeUnknownProducerIsNotFound drives the S3 scenario: consuming
// a nonexistent producer id fails with NotFound and creates no consumer.
func TestConsumeUnknownProducerIsNotFound(t *testing.T) {
	hub, _, _ := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	bob := dialTestClient(t, srv.URL)
	defer bob.conn.Close()
	// the admin path makes the session active without an authorizePending round trip
	bob.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "bob", ServerSecret: "wire", AdminSecret: "key"})

	capsResp := bob.request(EventGetRTPCaps, struct{}{})
	require.True(t, *capsResp.Ok)
	var caps wireCapabilities
	require.NoError(t, json.Unmarshal(capsResp.Result, &caps))

	resp := bob.request(EventConsume, consumePayload{
		TransportID:     "whatever",
		ProducerID:      "does-not-exist",
		RTPCapabilities: caps,
	})
	require.False(t, *resp.Ok)
	assert.Equal(t, "NotFound", resp.Error.Kind)
}

// TestDisconnectCascadeRemovesMemberAndNotifiesChannel drives the S6
// scenario: when bob's socket closes, admin (still a channel member)
// receives clientLeftChannel and bob is dropped from the channel's
// membership. No producers or consumers are opened here, so the teardown
// ReconcileAllOwnedBy performs on disconnect is not exercised.
func TestDisconnectCascadeRemovesMemberAndNotifiesChannel(t *testing.T) {
	hub, channels, clients := newTestHub(t)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	admin := dialTestClient(t, srv.URL)
	defer admin.conn.Close()
	bob := dialTestClient(t, srv.URL)

	adminResp := admin.request(EventAdminAuthenticate, adminAuthenticatePayload{DisplayName: "admin", ServerSecret: "wire", AdminSecret: "key"})
	var adminResult authenticateResult
	require.NoError(t, json.Unmarshal(adminResp.Result, &adminResult))

	mainCh, err := channels.Create("main", "")
	require.NoError(t, err)
	require.NoError(t, clients.AddToChannel(adminResult.ClientID, mainCh.ID))
	require.NoError(t, channels.AddMember(mainCh.ID, adminResult.ClientID))

	bobResp := bob.request(EventAuthenticate, authenticatePayload{DisplayName: "bob", ServerSecret: "wire"})
	var bobResult authenticateResult
	require.NoError(t, json.Unmarshal(bobResp.Result, &bobResult))
	admin.nextEvent() // pendingClient

	authResp := admin.request(EventAuthorizePending, authorizePendingPayload{
		ClientID: bobResult.ClientID,
		Channels: []string{mainCh.ID},
		Permissions: wirePermissions{
			SpeakTo:  map[string]bool{mainCh.ID: true},
			ListenTo: map[string]bool{mainCh.ID: true},
		},
	})
	require.True(t, *authResp.Ok)
	bob.nextEvent() // authorized

	require.NoError(t, bob.conn.Close())

	leftEvent := admin.nextEvent()
	assert.Equal(t, EventClientLeftChannel, leftEvent.Event)
	var leftPayload clientLeftPayload
	require.NoError(t, json.Unmarshal(leftEvent.Payload, &leftPayload))
	assert.Equal(t, mainCh.ID, leftPayload.ChannelID)
	assert.Equal(t, bobResult.ClientID, leftPayload.ClientID)

	assert.False(t, channels.IsMember(mainCh.ID, bobResult.ClientID))
	snap, err := clients.Get(bobResult.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.StatusClosed, snap.Status)
}
