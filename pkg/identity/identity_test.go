package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSession_NotifiesOnChange(t *testing.T) {
	s := NewSession(Identity{UserID: "u1", Role: RoleGuest})

	var seen []Identity
	unsubscribe := s.OnAuthChange(func(id Identity) { seen = append(seen, id) })

	s.SetUser(Identity{UserID: "u1", Role: RoleGuest})
	s.SetUser(Identity{UserID: "u2", Role: RoleOwner})
	s.SignOut()

	if len(seen) != 2 || seen[0].UserID != "u2" || !seen[1].IsZero() {
		t.Errorf("unexpected notifications %+v", seen)
	}

	if _, err := s.CurrentUser(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated after sign out, got %v", err)
	}

	unsubscribe()
	unsubscribe()
	s.SetUser(Identity{UserID: "u3"})
	if len(seen) != 2 {
		t.Errorf("listener called after unsubscribe")
	}
}

func TestContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Errorf("empty context should carry no identity")
	}

	ctx := WithIdentity(context.Background(), Identity{UserID: "u1", Role: RoleOwner})
	id, ok := FromContext(ctx)
	if !ok || id.UserID != "u1" || id.Role != RoleOwner {
		t.Errorf("FromContext() = %+v, %v", id, ok)
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("test-secret", "darna-auth")

	token, err := v.Issue(Identity{UserID: "owner-1", Role: RoleOwner}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	id, expires, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if id.UserID != "owner-1" || id.Role != RoleOwner {
		t.Errorf("Verify() identity = %+v", id)
	}
	if time.Until(expires) <= 0 {
		t.Errorf("expected expiry in the future, got %v", expires)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("test-secret", "darna-auth")
	other := NewVerifier("other-secret", "darna-auth")
	wrongIssuer := NewVerifier("test-secret", "someone-else")

	forged, _ := other.Issue(Identity{UserID: "u1"}, time.Hour)
	expired, _ := v.Issue(Identity{UserID: "u1"}, -time.Minute)
	foreign, _ := wrongIssuer.Issue(Identity{UserID: "u1"}, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", forged},
		{"expired", expired},
		{"wrong issuer", foreign},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := v.Verify(tt.token); !errors.Is(err, ErrUnauthenticated) {
				t.Errorf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestVerifier_DefaultsRoleToGuest(t *testing.T) {
	v := NewVerifier("test-secret", "")
	token, _ := v.Issue(Identity{UserID: "u1"}, time.Hour)

	id, _, err := v.Verify(token)
	if err != nil || id.Role != RoleGuest {
		t.Errorf("Verify() = %+v, %v", id, err)
	}
}
