package pairing

import "errors"

// Pairing and challenge-response errors.
var (
	// ErrNoSuchDevice is returned by operations that require an existing
	// pairing record (Accept, Reject) when none exists.
	ErrNoSuchDevice = errors.New("pairing: no pairing in progress for device")

	// ErrAlreadyPaired is returned by Request when the device is already
	// Paired.
	ErrAlreadyPaired = errors.New("pairing: device already paired")

	// ErrChallengeExpired is returned when a Response arrives after its
	// Challenge's 30 s expiry.
	ErrChallengeExpired = errors.New("pairing: challenge expired")

	// ErrChallengeReplayed is returned when a Response reuses a nonce that
	// has already been consumed.
	ErrChallengeReplayed = errors.New("pairing: nonce already used")

	// ErrChallengeNotFound is returned when a Response's nonce does not
	// match any outstanding challenge.
	ErrChallengeNotFound = errors.New("pairing: no outstanding challenge for nonce")

	// ErrTooManyChallenges is returned by IssueChallenge once 100
	// challenges are outstanding simultaneously.
	ErrTooManyChallenges = errors.New("pairing: too many outstanding challenges")

	// ErrInvalidSignature is returned when a Response's signature fails
	// Ed25519 verification against the stored challenge.
	ErrInvalidSignature = errors.New("pairing: invalid signature")
)
