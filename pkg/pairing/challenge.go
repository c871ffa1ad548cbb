package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
)

// ChallengeExpiry is how long an issued Challenge remains valid.
const ChallengeExpiry = 30 * time.Second

// MaxOutstandingChallenges bounds concurrent un-responded challenges.
const MaxOutstandingChallenges = 100

const challengeBytes = 32
const nonceBytes = 16

// Challenge is issued for an elevated operation (e.g. desktop unlock) and
// must be answered with a matching Response signed by the peer's Ed25519
// key.
type Challenge struct {
	RequestID    string `json:"request_id"`
	Challenge    string `json:"challenge"`
	Nonce        string `json:"nonce"`
	TimestampS   int64  `json:"timestamp_s"`
	DesktopID    string `json:"desktop_id"`
	rawChallenge []byte
}

// Response answers a Challenge.
type Response struct {
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
	PhoneID   string `json:"phone_id"`
}

// canonicalEncoding returns the bytes an Ed25519 signature is computed
// over: the raw challenge and nonce bytes concatenated with the timestamp
// and desktop id, in a fixed field order so both sides sign identical
// bytes regardless of JSON key ordering.
func (c Challenge) canonicalEncoding() []byte {
	nonce, _ := base64.StdEncoding.DecodeString(c.Nonce)
	buf := make([]byte, 0, len(c.rawChallenge)+len(nonce)+32)
	buf = append(buf, c.rawChallenge...)
	buf = append(buf, nonce...)
	buf = append(buf, []byte(fmt.Sprintf("%d|%s", c.TimestampS, c.DesktopID))...)
	return buf
}

// ChallengeStore issues and verifies challenge-response pairs for elevated
// operations: replay protection, expiry, and an outstanding-challenge cap.
type ChallengeStore struct {
	mu sync.Mutex

	outstanding *ttlcache.Cache[string, Challenge]
	usedNonces  *ttlcache.Cache[string, struct{}]
}

// NewChallengeStore creates a ChallengeStore and starts its background
// expiry sweeps.
func NewChallengeStore() *ChallengeStore {
	outstanding := ttlcache.New(
		ttlcache.WithTTL[string, Challenge](ChallengeExpiry),
		ttlcache.WithCapacity[string, Challenge](MaxOutstandingChallenges),
	)
	usedNonces := ttlcache.New(
		ttlcache.WithTTL[string, struct{}](2 * ChallengeExpiry),
	)

	go outstanding.Start()
	go usedNonces.Start()

	return &ChallengeStore{outstanding: outstanding, usedNonces: usedNonces}
}

// Close stops the background expiry sweeps.
func (cs *ChallengeStore) Close() {
	cs.outstanding.Stop()
	cs.usedNonces.Stop()
}

// Issue generates a new Challenge for desktopID. Returns
// ErrTooManyChallenges once MaxOutstandingChallenges are outstanding.
func (cs *ChallengeStore) Issue(desktopID string) (Challenge, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.outstanding.Len() >= MaxOutstandingChallenges {
		return Challenge{}, ErrTooManyChallenges
	}

	raw := make([]byte, challengeBytes)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, fmt.Errorf("pairing: generate challenge: %w", err)
	}
	nonce := make([]byte, nonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return Challenge{}, fmt.Errorf("pairing: generate nonce: %w", err)
	}

	c := Challenge{
		RequestID:    uuid.NewString(),
		Challenge:    base64.StdEncoding.EncodeToString(raw),
		Nonce:        base64.StdEncoding.EncodeToString(nonce),
		TimestampS:   time.Now().Unix(),
		DesktopID:    desktopID,
		rawChallenge: raw,
	}

	cs.outstanding.Set(c.Nonce, c, ttlcache.DefaultTTL)
	return c, nil
}

// Verify checks resp against its matching outstanding Challenge using
// Ed25519 public key pub. On success the nonce is marked used and cannot
// be replayed.
func (cs *ChallengeStore) Verify(resp Response, pub ed25519.PublicKey) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.usedNonces.Has(resp.Nonce) {
		return ErrChallengeReplayed
	}

	item := cs.outstanding.Get(resp.Nonce)
	if item == nil {
		return ErrChallengeNotFound
	}
	c := item.Value()

	if time.Since(time.Unix(c.TimestampS, 0)) > ChallengeExpiry {
		cs.outstanding.Delete(resp.Nonce)
		return ErrChallengeExpired
	}

	sig, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return fmt.Errorf("pairing: decode signature: %w", err)
	}

	if !ed25519.Verify(pub, c.canonicalEncoding(), sig) {
		return ErrInvalidSignature
	}

	cs.outstanding.Delete(resp.Nonce)
	cs.usedNonces.Set(resp.Nonce, struct{}{}, ttlcache.DefaultTTL)
	return nil
}

// UnmarshalJSON reconstructs rawChallenge (unexported, so the default
// decoder would otherwise leave it zero) from the base64 Challenge field.
func (c *Challenge) UnmarshalJSON(data []byte) error {
	type alias Challenge
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(a.Challenge)
	if err != nil {
		return fmt.Errorf("pairing: decode challenge: %w", err)
	}
	a.rawChallenge = raw
	*c = Challenge(a)
	return nil
}
