// Package tenant defines the tenant identity threaded through every engine
// call.
//
// Tenant isolation in memoryd is payload-based: collections are physically
// shared and every read, write, and delete is conjoined with a tenant_id
// predicate. The tenant is passed as an explicit value, never pulled from an
// ambient global, so an operation that forgets its tenant does not compile.
package tenant

import (
	"context"
	"errors"
	"regexp"
)

var (
	// ErrInvalidTenant is returned when a tenant identifier is empty or
	// contains characters outside the allowed set.
	ErrInvalidTenant = errors.New("invalid tenant identifier")

	// ErrMissingTenant is returned when tenant info is absent from a context.
	// This triggers fail-closed behavior: no empty results, just errors.
	ErrMissingTenant = errors.New("tenant info missing from context")
)

// idPattern restricts tenant identifiers to a filter-safe character set.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)

// Info identifies one isolated logical owner of data within shared physical
// storage. The id is opaque to the engine; it is only ever compared for
// equality inside filter predicates.
type Info struct {
	// ID is the opaque tenant identifier (required).
	ID string
}

// Validate checks that the tenant identifier is present and filter-safe.
func (t Info) Validate() error {
	if t.ID == "" || !idPattern.MatchString(t.ID) {
		return ErrInvalidTenant
	}
	return nil
}

// contextKey is the context key for Info.
type contextKey struct{}

// NewContext returns a context carrying the tenant. Transport layers resolve
// the tenant once (from auth) and stash it here; engine calls still take the
// tenant explicitly.
func NewContext(ctx context.Context, t Info) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// FromContext extracts the tenant from a context.
// Returns ErrMissingTenant if not present - fail closed.
func FromContext(ctx context.Context) (Info, error) {
	t, ok := ctx.Value(contextKey{}).(Info)
	if !ok {
		return Info{}, ErrMissingTenant
	}
	return t, nil
}
