package query

import (
	"context"
	"errors"

	"github.com/kestrelsec/huntkit/pkg/tables"
)

// ErrNotConnected is returned when a query runs before Connect succeeds.
var ErrNotConnected = errors.New("driver is not connected")

// ErrQueryNotFound is returned for lookups of unknown query keys.
var ErrQueryNotFound = errors.New("query not found")

// Driver executes rendered query text against a backend log system.
// Implementations are synchronous; a call blocks until the backend
// responds or ctx is cancelled.
type Driver interface {
	// Connect establishes the backend connection or validates credentials.
	Connect(ctx context.Context) error

	// Connected reports whether at least one successful connection was made.
	Connected() bool

	// RunQuery executes query text and returns the result table.
	RunQuery(ctx context.Context, query string) (*tables.Table, error)

	// Schema returns table/column metadata where the backend supports it.
	Schema(ctx context.Context) (map[string][]string, error)

	// Close releases backend resources.
	Close() error
}
