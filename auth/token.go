// Package auth issues and verifies the signed, single-use tokens that
// authorize one file upload from one sender to one receiver.
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	appcrypto "myshare/crypto"
)

// DefaultWindow bounds how far a token timestamp may drift from the receiver's clock.
const DefaultWindow = 300 * time.Second

const fieldSeparator = ":"

// Token authorizes the transfer of content with FileHash from SenderID to ReceiverID.
type Token struct {
	FileHash   string
	Nonce      string
	Timestamp  int64
	SenderID   string
	ReceiverID string
	Signature  string
}

// CanonicalMessage is the byte string covered by a token signature.
func CanonicalMessage(fileHash, nonce string, timestamp int64, senderID, receiverID string) []byte {
	return []byte(strings.Join([]string{
		fileHash,
		nonce,
		strconv.FormatInt(timestamp, 10),
		senderID,
		receiverID,
	}, fieldSeparator))
}

// Message returns the canonical message for t.
func (t Token) Message() []byte {
	return CanonicalMessage(t.FileHash, t.Nonce, t.Timestamp, t.SenderID, t.ReceiverID)
}

type options struct {
	now      func() time.Time
	newNonce func() string
}

// Option adjusts an Issuer or Verifier.
type Option func(*options)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithNonceSource replaces the UUID nonce generator.
func WithNonceSource(newNonce func() string) Option {
	return func(o *options) {
		if newNonce != nil {
			o.newNonce = newNonce
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:      time.Now,
		newNonce: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer signs tokens with the local signing key.
type Issuer struct {
	privateKey ed25519.PrivateKey
	opts       options
}

// NewIssuer returns an Issuer for privateKey.
func NewIssuer(privateKey ed25519.PrivateKey, opts ...Option) *Issuer {
	return &Issuer{privateKey: privateKey, opts: buildOptions(opts)}
}

// Issue creates a fresh token with a random nonce and the current unix time.
func (i *Issuer) Issue(fileHash, senderID, receiverID string) (Token, error) {
	if fileHash == "" || senderID == "" || receiverID == "" {
		return Token{}, errors.New("file hash, sender id and receiver id are required")
	}

	token := Token{
		FileHash:   fileHash,
		Nonce:      i.opts.newNonce(),
		Timestamp:  i.opts.now().Unix(),
		SenderID:   senderID,
		ReceiverID: receiverID,
	}
	signature, err := appcrypto.SignHex(i.privateKey, token.Message())
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	token.Signature = signature
	return token, nil
}
