package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	appcrypto "myshare/crypto"
)

// Verification failure causes. They are for local logging and security
// events only and must not be reported to the remote peer.
var (
	ErrReplayedNonce        = errors.New("auth: nonce already used")
	ErrTimestampOutOfWindow = errors.New("auth: timestamp outside accepted window")
	ErrInvalidSignature     = errors.New("auth: signature does not verify")
	ErrMalformedToken       = errors.New("auth: malformed token")
)

// Reason maps a verification error to a stable identifier.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrReplayedNonce):
		return "replayed_nonce"
	case errors.Is(err, ErrTimestampOutOfWindow):
		return "timestamp_out_of_window"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	default:
		return "nonce_store_failure"
	}
}

// Verifier checks tokens against a shared nonce store.
type Verifier struct {
	nonces NonceStore
	window time.Duration
	opts   options

	evictMu   sync.Mutex
	lastEvict time.Time
}

// NewVerifier returns a Verifier. A non-positive window selects DefaultWindow.
func NewVerifier(nonces NonceStore, window time.Duration, opts ...Option) *Verifier {
	if nonces == nil {
		nonces = NewMemoryNonceCache()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Verifier{
		nonces: nonces,
		window: window,
		opts:   buildOptions(opts),
	}
}

// Window returns the accepted timestamp skew.
func (v *Verifier) Window() time.Duration {
	return v.window
}

// Verify reports whether token is valid for publicKey, consuming its nonce on success.
func (v *Verifier) Verify(token Token, publicKey ed25519.PublicKey) bool {
	if err := v.Check(token, publicKey); err != nil {
		slog.Warn("token rejected", "sender_id", token.SenderID, "reason", Reason(err))
		return false
	}
	return true
}

// Check is Verify with the failure cause. The nonce is consumed only when
// every check passes, and at most one concurrent caller can consume it.
func (v *Verifier) Check(token Token, publicKey ed25519.PublicKey) error {
	if token.Nonce == "" || token.Signature == "" {
		return ErrMalformedToken
	}

	now := v.opts.now()
	v.maybeEvict(now)

	seen, err := v.nonces.Seen(token.Nonce)
	if err != nil {
		return fmt.Errorf("check nonce: %w", err)
	}
	if seen {
		return ErrReplayedNonce
	}

	// The peer timestamp is compared, never subtracted.
	nowUnix := now.Unix()
	windowSeconds := int64(v.window / time.Second)
	if token.Timestamp < nowUnix-windowSeconds || token.Timestamp > nowUnix+windowSeconds {
		return ErrTimestampOutOfWindow
	}

	if !appcrypto.VerifyHex(publicKey, token.Message(), token.Signature) {
		return ErrInvalidSignature
	}

	fresh, err := v.nonces.Consume(token.Nonce, token.Timestamp)
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if !fresh {
		return ErrReplayedNonce
	}
	return nil
}

// maybeEvict drops nonces that can no longer pass the timestamp check, at most
// once per window.
func (v *Verifier) maybeEvict(now time.Time) {
	v.evictMu.Lock()
	if !v.lastEvict.IsZero() && now.Sub(v.lastEvict) < v.window {
		v.evictMu.Unlock()
		return
	}
	v.lastEvict = now
	v.evictMu.Unlock()

	cutoff := now.Add(-v.window).Unix()
	removed, err := v.nonces.Evict(cutoff)
	if err != nil {
		slog.Warn("nonce eviction failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Debug("evicted expired nonces", "count", removed)
	}
}
