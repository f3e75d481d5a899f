package client

import (
	"testing"

	"github.com/concord-chat/intercom-router/internal/apierr"
	"github.com/concord-chat/intercom-router/internal/permission"
)

func TestEnrollPendingThenAuthorize(t *testing.T) {
	r := NewRegistry()
	pending := r.EnrollPending("bob", "sess-1")
	if pending.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", pending.Status)
	}

	perms := permission.NewMatrix()
	perms.SpeakTo["main"] = true
	perms.ListenTo["main"] = true
	active, err := r.Authorize(pending.ID, []string{"main"}, perms)
	if err != nil {
		t.Fatal(err)
	}
	if active.Status != StatusActive {
		t.Fatalf("expected active status, got %s", active.Status)
	}
	settings, ok := active.UserSettings["main"]
	if !ok || settings.Volume != 1.0 || settings.Muted {
		t.Fatalf("expected default user settings, got %+v", settings)
	}
}

func TestAuthorizeTwiceIsNotFound(t *testing.T) {
	r := NewRegistry()
	pending := r.EnrollPending("bob", "sess-1")
	if _, err := r.Authorize(pending.ID, nil, permission.NewMatrix()); err != nil {
		t.Fatal(err)
	}
	_, err := r.Authorize(pending.ID, nil, permission.NewMatrix())
	if apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound re-authorizing, got %v", err)
	}
}

func TestRejectThenRejectAgainNotFound(t *testing.T) {
	r := NewRegistry()
	pending := r.EnrollPending("bob", "sess-1")
	if err := r.Reject(pending.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Reject(pending.ID); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound on second reject, got %v", err)
	}
}

func TestVolumeClamped(t *testing.T) {
	if ClampVolume(-0.5) != 0 {
		t.Fatal("expected -0.5 to clamp to 0")
	}
	if ClampVolume(1.5) != 1 {
		t.Fatal("expected 1.5 to clamp to 1")
	}
}

func TestAddThenRemoveChannelRestoresState(t *testing.T) {
	r := NewRegistry()
	active := r.EnrollActiveAdmin("admin", "sess-a")

	if err := r.AddToChannel(active.ID, "extra"); err != nil {
		t.Fatal(err)
	}
	snap, _ := r.Get(active.ID)
	if len(snap.Channels) != 1 || snap.UserSettings["extra"].Volume != 1.0 {
		t.Fatalf("unexpected state after add: %+v", snap)
	}

	if err := r.RemoveFromChannel(active.ID, "extra"); err != nil {
		t.Fatal(err)
	}
	snap, _ = r.Get(active.ID)
	if len(snap.Channels) != 0 {
		t.Fatalf("expected no channels after remove, got %v", snap.Channels)
	}
	if _, ok := snap.UserSettings["extra"]; ok {
		t.Fatal("expected user settings entry removed along with membership")
	}
}

func TestSetChannelMuteIdempotent(t *testing.T) {
	r := NewRegistry()
	active := r.EnrollActiveAdmin("admin", "sess-a")
	r.AddToChannel(active.ID, "main")

	if err := r.SetChannelMute(active.ID, "main", true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetChannelMute(active.ID, "main", true); err != nil {
		t.Fatal(err)
	}
	snap, _ := r.Get(active.ID)
	if !snap.UserSettings["main"].Muted {
		t.Fatal("expected muted true")
	}
}

func TestCloseTwiceIsSafe(t *testing.T) {
	r := NewRegistry()
	active := r.EnrollActiveAdmin("admin", "sess-a")
	if err := r.Close(active.ID); err != nil {
		t.Fatal(err)
	}
	if err := r.Close(active.ID); err != nil {
		t.Fatal("second close should be a no-op, not an error")
	}
}

func TestSetMuteOnNonMemberChannelNotFound(t *testing.T) {
	r := NewRegistry()
	active := r.EnrollActiveAdmin("admin", "sess-a")
	if err := r.SetChannelMute(active.ID, "main", true); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound for non-member channel, got %v", err)
	}
}
