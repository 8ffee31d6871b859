// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/seongminnpark/Villim/lib/clock"
	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/token"
)

// ActionFunc processes a socket request for a specific action. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// AuthActionFunc processes an authenticated socket request. The server
// has already verified the request's token; the handler receives the
// decoded payload and trusts its subject as the caller identity.
type AuthActionFunc func(ctx context.Context, caller *token.Token, raw []byte) (any, error)

// StreamActionFunc processes an authenticated streaming action. The
// handler owns the connection for its lifetime: it writes CBOR frames
// directly and returns when the stream ends. The server does not
// write a response envelope for stream actions.
type StreamActionFunc func(ctx context.Context, caller *token.Token, raw []byte, conn net.Conn)

// AuthConfig holds what the server needs to verify caller tokens.
// A server constructed with a nil AuthConfig panics on HandleAuth:
// registering an authenticated action without the means to verify it
// is a programming error.
type AuthConfig struct {
	// PublicKey is the token authority's Ed25519 verification key.
	PublicKey ed25519.PublicKey

	// Audience is the audience value tokens must carry to be accepted
	// by this server.
	Audience string

	// Blacklist holds revoked token IDs. Optional; a nil blacklist
	// skips the revocation check.
	Blacklist *token.Blacklist

	// Clock supplies the time for expiry checks. Tests inject a fake.
	Clock clock.Clock
}

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. Each connection handles exactly one request-response cycle:
// the client writes a CBOR value, the server processes it and writes
// a CBOR response, then the connection closes.
//
// Actions are registered with Handle or HandleAuth before calling
// Serve. Unknown actions receive an error response.
type SocketServer struct {
	socketPath     string
	handlers       map[string]ActionFunc
	streamHandlers map[string]StreamActionFunc
	logger         *slog.Logger
	auth           *AuthConfig

	// activeConnections tracks in-flight request handlers for graceful
	// shutdown. Serve waits for all active connections to complete
	// before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// The auth config may be nil for servers that expose only
// unauthenticated actions. Register actions with Handle or HandleAuth
// before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger, auth *AuthConfig) *SocketServer {
	return &SocketServer{
		socketPath:     socketPath,
		handlers:       make(map[string]ActionFunc),
		streamHandlers: make(map[string]StreamActionFunc),
		logger:         logger,
		auth:           auth,
	}
}

// Handle registers an unauthenticated handler for the given action
// name. Panics if the action is already registered.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if s.registered(action) {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

func (s *SocketServer) registered(action string) bool {
	if _, exists := s.handlers[action]; exists {
		return true
	}
	_, exists := s.streamHandlers[action]
	return exists
}

// HandleAuth registers a handler that requires a verified caller
// token. The server extracts the request's "token" field, verifies
// signature, expiry, audience, and revocation, and passes the decoded
// token to the handler. Panics if the server has no AuthConfig or the
// action is already registered.
func (s *SocketServer) HandleAuth(action string, handler AuthActionFunc) {
	if s.auth == nil {
		panic(fmt.Sprintf("service.SocketServer: HandleAuth(%q) on a server without an AuthConfig", action))
	}
	s.Handle(action, func(ctx context.Context, raw []byte) (any, error) {
		caller, err := s.authenticate(raw)
		if err != nil {
			return nil, err
		}
		return handler(ctx, caller, raw)
	})
}

// HandleAuthStream registers a streaming handler that requires a
// verified caller token. After authentication, the server clears the
// connection's read deadline and hands it to the handler, which
// writes CBOR frames until the stream ends. Panics if the server has
// no AuthConfig or the action is already registered.
func (s *SocketServer) HandleAuthStream(action string, handler StreamActionFunc) {
	if s.auth == nil {
		panic(fmt.Sprintf("service.SocketServer: HandleAuthStream(%q) on a server without an AuthConfig", action))
	}
	if s.registered(action) {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.streamHandlers[action] = handler
}

// authenticate extracts and verifies the token field of a request.
func (s *SocketServer) authenticate(raw []byte) (*token.Token, error) {
	var envelope struct {
		Token []byte `cbor:"token"`
	}
	if err := codec.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	if len(envelope.Token) == 0 {
		return nil, errors.New("missing token field")
	}

	verified, err := token.VerifyAt(s.auth.PublicKey, envelope.Token, s.auth.Clock.Now())
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenExpired):
			return nil, errors.New("token expired")
		case errors.Is(err, token.ErrInvalidSignature), errors.Is(err, token.ErrTokenTooShort):
			return nil, errors.New("invalid token signature")
		default:
			return nil, fmt.Errorf("token verification: %w", err)
		}
	}
	if verified.Audience != s.auth.Audience {
		return nil, fmt.Errorf("token audience %q does not match service %q", verified.Audience, s.auth.Audience)
	}
	if s.auth.Blacklist != nil && s.auth.Blacklist.IsRevoked(verified.ID) {
		return nil, errors.New("token revoked")
	}
	return verified, nil
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request. 1 MB
// is generous for any registry operation; listing metadata references
// are fixed-size digests, not inline documents.
const maxRequestSize = 1024 * 1024

// handleConnection processes one request-response cycle.
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeError(conn, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeError(conn, "missing required field: action")
		return
	}

	if streamHandler, exists := s.streamHandlers[header.Action]; exists {
		caller, err := s.authenticate([]byte(raw))
		if err != nil {
			s.writeError(conn, err.Error())
			return
		}
		// Streams are long-lived; the request read deadline no longer
		// applies. The handler owns write pacing from here.
		conn.SetReadDeadline(time.Time{})
		streamHandler(ctx, caller, []byte(raw), conn)
		return
	}

	handler, exists := s.handlers[header.Action]
	if !exists {
		s.writeError(conn, fmt.Sprintf("unknown action %q", header.Action))
		return
	}

	result, err := handler(ctx, []byte(raw))
	if err != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", err,
		)
		s.writeError(conn, err.Error())
		return
	}

	s.writeSuccess(conn, result)
}

// writeError sends a failure response: {ok: false, error: "..."}.
// Write failures are logged at debug level — the connection is closing
// regardless, and the caller has already received the error.
func (s *SocketServer) writeError(conn net.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(Response{
		OK:    false,
		Error: message,
	}); err != nil {
		s.logger.Debug("failed to write error response", "error", err)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeError(conn, fmt.Sprintf("internal: marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
