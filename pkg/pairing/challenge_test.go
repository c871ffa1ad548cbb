package pairing

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

func signResponse(t *testing.T, priv ed25519.PrivateKey, c Challenge, phoneID string) Response {
	t.Helper()
	sig := ed25519.Sign(priv, c.canonicalEncoding())
	return Response{
		Nonce:     c.Nonce,
		Signature: base64.StdEncoding.EncodeToString(sig),
		PhoneID:   phoneID,
	}
}

func TestChallengeIssueVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := NewChallengeStore()
	defer store.Close()

	c, err := store.Issue("desktop-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	resp := signResponse(t, priv, c, "phone-1")
	if err := store.Verify(resp, pub); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestChallengeReplayRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := NewChallengeStore()
	defer store.Close()

	c, err := store.Issue("desktop-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	resp := signResponse(t, priv, c, "phone-1")

	if err := store.Verify(resp, pub); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := store.Verify(resp, pub); err != ErrChallengeReplayed {
		t.Fatalf("got %v, want ErrChallengeReplayed", err)
	}
}

func TestChallengeUnknownNonceRejected(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := NewChallengeStore()
	defer store.Close()

	resp := Response{Nonce: "bogus", Signature: "AA=="}
	if err := store.Verify(resp, pub); err != ErrChallengeNotFound {
		t.Fatalf("got %v, want ErrChallengeNotFound", err)
	}
}

func TestChallengeInvalidSignatureRejected(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	_, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := NewChallengeStore()
	defer store.Close()

	c, err := store.Issue("desktop-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Sign with the wrong private key.
	resp := signResponse(t, otherPriv, c, "phone-1")

	if err := store.Verify(resp, pub); err != ErrInvalidSignature {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
}

func TestChallengeTooManyOutstandingRejected(t *testing.T) {
	store := NewChallengeStore()
	defer store.Close()

	for i := 0; i < MaxOutstandingChallenges; i++ {
		if _, err := store.Issue("desktop-1"); err != nil {
			t.Fatalf("Issue %d: %v", i, err)
		}
	}

	if _, err := store.Issue("desktop-1"); err != ErrTooManyChallenges {
		t.Fatalf("got %v, want ErrTooManyChallenges", err)
	}
}

func TestChallengeExpiredRejected(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := NewChallengeStore()
	defer store.Close()

	c, err := store.Issue("desktop-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	resp := signResponse(t, priv, c, "phone-1")

	// Back-date the stored challenge past its expiry without waiting for
	// the cache's own TTL sweep, so the timestamp check in Verify fires.
	c.TimestampS = time.Now().Add(-2 * ChallengeExpiry).Unix()
	store.outstanding.Set(c.Nonce, c, ttlcache.DefaultTTL)

	if err := store.Verify(resp, pub); err != ErrChallengeExpired {
		t.Fatalf("got %v, want ErrChallengeExpired", err)
	}
}
