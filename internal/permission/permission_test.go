package permission

import "testing"

func TestAllowRequiresMembership(t *testing.T) {
	m := NewMatrix()
	m.SpeakToAll = true
	if Allow(m, "main", false, Speak) {
		t.Fatal("expected speak denied when not a member")
	}
	if !Allow(m, "main", true, Speak) {
		t.Fatal("expected speak allowed for member with speakToAll")
	}
}

func TestAllowPerChannelGrant(t *testing.T) {
	m := NewMatrix()
	m.ListenTo["main"] = true
	if Allow(m, "other", true, Listen) {
		t.Fatal("expected listen denied in channel without grant")
	}
	if !Allow(m, "main", true, Listen) {
		t.Fatal("expected listen allowed in granted channel")
	}
}

func TestAllowUnknownDirection(t *testing.T) {
	m := NewMatrix()
	m.SpeakToAll = true
	m.ListenToAll = true
	if Allow(m, "main", true, "dance") {
		t.Fatal("expected unknown direction to deny")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := NewMatrix()
	m.SpeakTo["main"] = true
	c := m.Clone()
	c.SpeakTo["main"] = false
	if !m.SpeakTo["main"] {
		t.Fatal("mutating clone mutated original")
	}
}
