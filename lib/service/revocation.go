// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/token"
)

// RegisterRevocationHandler installs the "revoke-tokens" action. The
// token authority pushes signed revocation requests through it when a
// caller's tokens must stop working before their natural expiry. The
// request is authenticated by its own signature rather than a caller
// token, so the action uses Handle, not HandleAuth.
//
// Panics if the server has no AuthConfig or the config has no
// blacklist: accepting revocations with nowhere to record them is a
// programming error.
func (s *SocketServer) RegisterRevocationHandler() {
	if s.auth == nil || s.auth.Blacklist == nil {
		panic("service.SocketServer: RegisterRevocationHandler requires an AuthConfig with a Blacklist")
	}
	s.Handle("revoke-tokens", s.handleRevokeTokens)
}

func (s *SocketServer) handleRevokeTokens(ctx context.Context, raw []byte) (any, error) {
	var request struct {
		Revocation []byte `cbor:"revocation"`
	}
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if len(request.Revocation) == 0 {
		return nil, errors.New("missing revocation field")
	}

	verified, err := token.VerifyRevocation(s.auth.PublicKey, request.Revocation)
	if err != nil {
		return nil, fmt.Errorf("revocation verification failed: %w", err)
	}

	for _, entry := range verified.Entries {
		s.auth.Blacklist.Revoke(entry.TokenID, time.Unix(entry.ExpiresAt, 0))
	}

	// Opportunistic cleanup keeps the blacklist bounded without a
	// dedicated timer.
	s.auth.Blacklist.Cleanup(s.auth.Clock.Now())

	s.logger.Info("tokens revoked", "count", len(verified.Entries))
	return map[string]any{"revoked": len(verified.Entries)}, nil
}
