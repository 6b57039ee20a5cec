package memory

import (
	"errors"
	"fmt"
	"regexp"

	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrConnectionFailed indicates the backing vector database is
	// unreachable. Fatal at construction; retryable per caller policy for
	// in-flight calls.
	ErrConnectionFailed = errors.New("failed to connect to vector database")

	// ErrCollectionNotFound indicates an operation against a collection that
	// does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidCollectionName indicates a collection name outside the
	// allowed pattern.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidConfig indicates invalid engine or backend configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrBatchLengthMismatch is raised synchronously, before any I/O, when a
	// batch call supplies arrays of different lengths.
	ErrBatchLengthMismatch = errors.New("ids, payloads and vectors must have the same length")

	// ErrVectorSizeMismatch is raised before any network call when a vector's
	// dimensionality does not equal the collection's configured size.
	ErrVectorSizeMismatch = errors.New("vector size does not match the configured embedder size")

	// ErrInvalidLimit indicates a non-positive search limit. Unbounded reads
	// go through the scanner, never through recall.
	ErrInvalidLimit = errors.New("limit must be positive")

	// ErrMigrationFailed wraps a failed collection migration. The engine
	// attempts best-effort cleanup of any partially created collection before
	// returning it.
	ErrMigrationFailed = errors.New("collection migration failed")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name against naming rules.
// Rejects uppercase, special characters, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability.
// Returns false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}
