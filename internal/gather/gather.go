// Package gather drives sync runs over the instrument universe.
package gather

import (
	"context"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run executes one pass over the universe. It returns early only when
	// ctx is cancelled, and even then finishes the in-flight instrument.
	Run(ctx context.Context) error
}
