package consumption

import (
	"context"

	"github.com/LerianStudio/lib-custody/custody"
)

// Store is the persistence contract for the consumed-ID set.
//
// Implementations must never remove an ID once recorded and must serialize
// concurrent Consume calls for the same ID so that exactly one returns true.
type Store interface {
	// Consume records id as consumed. It returns true when this call
	// performed the transition and false when id was already consumed.
	Consume(ctx context.Context, id custody.AuthorizationID) (bool, error)

	// Consumed reports whether id has been consumed.
	Consumed(ctx context.Context, id custody.AuthorizationID) (bool, error)
}
