// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory is the registry's boundary to the external
// capability-resolution service: the component that knows which
// principals are registered sibling services and what address each
// service code resolves to.
//
// The registry consults the directory at exactly two points, both
// distinct from any mutation in flight: once at configuration time to
// bind the device-ownership service's principal, and on each
// trusted-caller check. The resolver is injected at construction —
// core code never looks it up ad hoc.
package directory

import (
	"errors"
	"fmt"

	"github.com/seongminnpark/Villim/lib/principal"
)

// ErrUnknownService is returned by Resolve for a service code the
// directory has no binding for.
var ErrUnknownService = errors.New("directory: unknown service code")

// Resolver answers the two questions the registry asks of the
// capability-resolution service.
type Resolver interface {
	// Resolve returns the principal bound to a service code (e.g.,
	// "device" -> "service/device"). Returns an error wrapping
	// ErrUnknownService when no binding exists.
	Resolve(serviceCode string) (principal.ID, error)

	// IsTrusted reports whether p is a registered sibling service.
	IsTrusted(p principal.ID) bool
}

// Static is a Resolver backed by a fixed table, populated from the
// service configuration file. Suitable for deployments where the
// sibling-service set is known at startup, and for tests.
//
// Static is immutable after construction and therefore safe for
// concurrent use.
type Static struct {
	services map[string]principal.ID
	trusted  map[principal.ID]struct{}
}

// NewStatic builds a Static resolver. Every principal in the services
// table is implicitly trusted; additional trusted principals (services
// without a resolvable code) can be listed in trusted.
func NewStatic(services map[string]principal.ID, trusted []principal.ID) *Static {
	resolver := &Static{
		services: make(map[string]principal.ID, len(services)),
		trusted:  make(map[principal.ID]struct{}, len(services)+len(trusted)),
	}
	for code, p := range services {
		resolver.services[code] = p
		resolver.trusted[p] = struct{}{}
	}
	for _, p := range trusted {
		resolver.trusted[p] = struct{}{}
	}
	return resolver
}

// Resolve implements Resolver.
func (r *Static) Resolve(serviceCode string) (principal.ID, error) {
	p, exists := r.services[serviceCode]
	if !exists {
		return "", fmt.Errorf("resolving %q: %w", serviceCode, ErrUnknownService)
	}
	return p, nil
}

// IsTrusted implements Resolver.
func (r *Static) IsTrusted(p principal.ID) bool {
	_, trusted := r.trusted[p]
	return trusted
}
