package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewParticipantValidatesName(t *testing.T) {
	if _, err := NewParticipant("u1", "", RoleGuest, time.Now()); !errors.Is(err, ErrNameEmpty) {
		t.Fatalf("empty name err = %v, want %v", err, ErrNameEmpty)
	}
	long := strings.Repeat("x", MaxDisplayNameLen+1)
	if _, err := NewParticipant("u1", long, RoleGuest, time.Now()); !errors.Is(err, ErrNameTooLong) {
		t.Fatalf("long name err = %v, want %v", err, ErrNameTooLong)
	}
}

func TestNewParticipantDefaults(t *testing.T) {
	p, err := NewParticipant("u1", "Ann", RoleHost, time.Now())
	if err != nil {
		t.Fatalf("new participant: %v", err)
	}
	if !p.VideoOn {
		t.Fatal("video must default on")
	}
	if p.Muted || p.ScreenSharing {
		t.Fatal("muted and screen sharing must default off")
	}
	if p.Role != RoleHost {
		t.Fatalf("role = %v", p.Role)
	}
}
