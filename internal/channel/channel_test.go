package channel

import (
	"testing"

	"github.com/concord-chat/intercom-router/internal/apierr"
)

func TestNewRegistrySeedsSystemChannel(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	if len(list) != 1 {
		t.Fatalf("expected exactly one channel, got %d", len(list))
	}
	if !list[0].System || list[0].Name != SystemChannelName {
		t.Fatalf("expected system channel, got %+v", list[0])
	}
}

func TestDeleteSystemChannelFails(t *testing.T) {
	r := NewRegistry()
	sysID := r.SystemChannelID()
	err := r.Delete(sysID)
	ae, ok := apierr.As(err)
	if !ok || ae.Kind != apierr.Conflict {
		t.Fatalf("expected Conflict deleting system channel, got %v", err)
	}
	if !r.Exists(sysID) {
		t.Fatal("system channel must still exist after failed delete")
	}
}

func TestCreateDuplicateNameConflict(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Create("main", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := r.Create("main", "")
	ae, ok := apierr.As(err)
	if !ok || ae.Kind != apierr.Conflict {
		t.Fatalf("expected Conflict on duplicate name, got %v", err)
	}
}

func TestMemberLifecycleIdempotent(t *testing.T) {
	r := NewRegistry()
	ch, _ := r.Create("main", "")

	if err := r.AddMember(ch.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := r.AddMember(ch.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if !r.IsMember(ch.ID, "bob") {
		t.Fatal("expected bob to be a member")
	}
	if err := r.RemoveMember(ch.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	if err := r.RemoveMember(ch.ID, "bob"); err != nil {
		t.Fatal("second removal should be a no-op, not an error")
	}
	if r.IsMember(ch.ID, "bob") {
		t.Fatal("expected bob to no longer be a member")
	}
}

func TestUnknownChannelOperationsNotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if err := r.AddMember("nope", "bob"); apierr.KindOf(err) != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestProducerSetTracksChannel(t *testing.T) {
	r := NewRegistry()
	ch, _ := r.Create("main", "")
	if err := r.AddProducer(ch.ID, "p1"); err != nil {
		t.Fatal(err)
	}
	snap, _ := r.Get(ch.ID)
	if snap.ProducerCount != 1 {
		t.Fatalf("expected 1 producer, got %d", snap.ProducerCount)
	}
	if err := r.RemoveProducer(ch.ID, "p1"); err != nil {
		t.Fatal(err)
	}
	snap, _ = r.Get(ch.ID)
	if snap.ProducerCount != 0 {
		t.Fatalf("expected 0 producers after removal, got %d", snap.ProducerCount)
	}
}
