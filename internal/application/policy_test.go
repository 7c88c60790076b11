package application

import (
	"context"
	"errors"
	"testing"
)

func TestAdminAllowlist(t *testing.T) {
	t.Parallel()

	list := NewAdminAllowlist(" Coach@Example.com ", "", "owner@example.com", "coach@example.com")
	if list.Len() != 2 {
		t.Fatalf("expected 2 administrators, got %d", list.Len())
	}
	if !list.IsAdministrator(Identity{Email: "COACH@example.com"}) {
		t.Fatal("expected case-insensitive match")
	}
	if list.IsAdministrator(ana) || list.IsAdministrator(Identity{}) {
		t.Fatal("expected non-members to be denied")
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	allowAll := PolicyFunc(func(Identity) bool { return true })
	tests := []struct {
		name   string
		policy AuthorizationPolicy
		caller Identity
		want   error
	}{
		{name: "anonymous", policy: allowAll, caller: Identity{}, want: ErrUnauthenticated},
		{name: "nil policy denies", policy: nil, caller: coach, want: ErrUnauthorized},
		{name: "denied", policy: admins, caller: ana, want: ErrUnauthorized},
		{name: "allowed", policy: admins, caller: coach, want: nil},
		{name: "custom policy", policy: allowAll, caller: bia, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := requireAdmin(tt.policy, tt.caller); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSessionCatalog(t *testing.T) {
	t.Parallel()

	store := openSQLite(t)
	ctx := context.Background()
	late := seedSession(t, store, "2024-06-20", 2)
	early := seedSession(t, store, "2024-06-01", 2)
	attendance := newAttendance(store)
	if _, err := attendance.ConfirmAttendance(ctx, late, ana); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	catalog := NewSessionCatalog(store)
	if _, err := catalog.GetSession(ctx, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty id, got %v", err)
	}
	session, err := catalog.GetSession(ctx, late)
	if err != nil || session.Capacity != 2 || session.Date != "2024-06-20" {
		t.Fatalf("unexpected session %+v (%v)", session, err)
	}

	count, err := catalog.CountConfirmations(ctx, late)
	if err != nil || count != 1 {
		t.Fatalf("expected one confirmation, got %d (%v)", count, err)
	}
	if _, err := attendance.ConfirmAttendance(ctx, late, bia); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if count, _ := catalog.CountConfirmations(ctx, late); count != 2 {
		t.Fatalf("expected a fresh count of 2, got %d", count)
	}

	sessions, err := Collect(catalog.ListSessionsOrdered(ctx))
	if err != nil {
		t.Fatalf("ListSessionsOrdered failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != early || sessions[1].ID != late {
		t.Fatalf("expected sessions by date ascending, got %+v", sessions)
	}
}
