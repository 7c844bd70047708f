package token

import (
	"strings"
	"testing"
	"time"
)

func testIssuer(t *testing.T) *Issuer {
	i, err := NewIssuer("supersecretkeythatisatleast16byteslong")
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	return i
}

func TestIssuer_RequiresSecret(t *testing.T) {
	if _, err := NewIssuer(""); err != ErrNoSecret {
		t.Errorf("expected ErrNoSecret, got %v", err)
	}
}

func TestIssuer_SignAndVerify(t *testing.T) {
	i := testIssuer(t)

	tok, err := i.Sign(42, "Ada", "ada@example.com")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := i.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.ID != 42 || claims.Name != "Ada" || claims.Email != "ada@example.com" {
		t.Errorf("claims = {%d %q %q}, want {42 Ada ada@example.com}", claims.ID, claims.Name, claims.Email)
	}
}

func TestIssuer_ExpiryIsExactly24h(t *testing.T) {
	i := testIssuer(t)
	issued := time.Unix(1_700_000_000, 0)
	i.nowFunc = func() time.Time { return issued }

	tok, err := i.Sign(1, "a", "a@b.c")
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	claims, err := i.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got := claims.ExpiresAt.Time.Sub(claims.IssuedAt.Time); got != SessionTTL {
		t.Errorf("lifetime=%v, want %v", got, SessionTTL)
	}

	// One second past the boundary the token is dead.
	i.nowFunc = func() time.Time { return issued.Add(SessionTTL + time.Second) }
	if _, err := i.Verify(tok); err == nil {
		t.Error("Verify passed for expired token")
	}
}

func TestIssuer_TamperedSignature(t *testing.T) {
	i := testIssuer(t)
	tok, _ := i.Sign(1, "a", "a@b.c")

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatal("invalid JWT format")
	}
	sig := parts[2]
	if sig[0] == 'a' {
		sig = "b" + sig[1:]
	} else {
		sig = "a" + sig[1:]
	}
	if _, err := i.Verify(parts[0] + "." + parts[1] + "." + sig); err == nil {
		t.Error("Verify passed for tampered signature")
	}
}

func TestIssuer_WrongSecret(t *testing.T) {
	i := testIssuer(t)
	tok, _ := i.Sign(1, "a", "a@b.c")

	other, _ := NewIssuer("a-completely-different-signing-secret")
	if _, err := other.Verify(tok); err == nil {
		t.Error("Verify passed under a different secret")
	}
}

func TestIssuer_EmptyToken(t *testing.T) {
	i := testIssuer(t)
	if _, err := i.Verify(""); err != ErrEmptyToken {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
}
