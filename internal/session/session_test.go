package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
)

func TestIssueAndVerify(t *testing.T) {
	v := NewVerifier("secret")
	tok, err := v.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	s, err := v.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if s.UserID != "user-1" {
		t.Errorf("user = %q", s.UserID)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, _ := NewVerifier("a").Issue("user-1", time.Hour)
	if _, err := NewVerifier("b").Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	v := NewVerifier("secret")
	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	tok, _ := v.Issue("user-1", time.Hour)

	v.now = time.Now
	if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	if _, err := NewVerifier("secret").Verify("not.a.jwt"); err == nil {
		t.Fatal("expected error")
	}
}

func TestUserID_NoSession(t *testing.T) {
	if _, err := UserID(context.Background()); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestUserID_ExpiredSession(t *testing.T) {
	ctx := NewContext(context.Background(), Session{UserID: "u", ExpiresAt: time.Now().Add(-time.Minute)})
	if _, err := UserID(ctx); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Fatalf("err = %v, want ErrUnauthenticated", err)
	}
}

func TestUserID_Active(t *testing.T) {
	ctx := NewContext(context.Background(), Session{UserID: "u"})
	id, err := UserID(ctx)
	if err != nil || id != "u" {
		t.Fatalf("UserID = %q, %v", id, err)
	}
}
