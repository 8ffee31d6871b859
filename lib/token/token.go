// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/principal"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Audience is the audience value for registry tokens. A token minted
// for a different Villim service is rejected here.
const Audience = "registry"

// Token is the CBOR-encoded payload of a caller token.
type Token struct {
	// Subject is the authenticated caller principal. Every socket
	// action attributes its mutation to this identity.
	Subject principal.ID `cbor:"1,keyasint"`

	// Audience is the service the token is scoped to. A registry
	// token cannot be replayed against another service.
	Audience string `cbor:"2,keyasint"`

	// ID is a unique token identifier (hex string), reserved for
	// revocation tooling.
	ID string `cbor:"3,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the authority
	// minted this token.
	IssuedAt int64 `cbor:"4,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which this token
	// is no longer valid.
	ExpiresAt int64 `cbor:"5,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("token: too short for signature")
	ErrInvalidSignature = errors.New("token: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("token: expired")
	ErrAudienceMismatch = errors.New("token: audience does not match")
)

// Mint signs a Token with the authority's private key and returns the
// raw wire bytes: CBOR payload followed by the 64-byte signature. The
// deterministic codec guarantees that re-encoding the same payload
// reproduces the signed bytes.
func Mint(privateKey ed25519.PrivateKey, payload *Token) ([]byte, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("token: encoding payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, encoded)

	wire := make([]byte, len(encoded)+signatureSize)
	copy(wire, encoded)
	copy(wire[len(encoded):], signature)
	return wire, nil
}

// Verify splits the raw token bytes, verifies the signature, decodes
// the payload, and checks expiry against the wall clock. Callers that
// need deterministic time use [VerifyAt].
func Verify(publicKey ed25519.PublicKey, wire []byte) (*Token, error) {
	return VerifyAt(publicKey, wire, time.Now())
}

// VerifyAt is Verify with an explicit time for expiry checks.
func VerifyAt(publicKey ed25519.PublicKey, wire []byte, now time.Time) (*Token, error) {
	if len(wire) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(wire) - signatureSize
	payload := wire[:splitPoint]
	signature := wire[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var decoded Token
	if err := codec.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("token: decoding payload: %w", err)
	}

	if now.Unix() >= decoded.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &decoded, nil
}

// VerifyForRegistry combines VerifyAt with the registry audience
// check. This is the call the socket server's authentication path
// makes.
func VerifyForRegistry(publicKey ed25519.PublicKey, wire []byte, now time.Time) (*Token, error) {
	decoded, err := VerifyAt(publicKey, wire, now)
	if err != nil {
		return nil, err
	}
	if decoded.Audience != Audience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, decoded.Audience, Audience)
	}
	return decoded, nil
}
