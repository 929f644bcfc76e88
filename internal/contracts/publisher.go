package contracts

import "context"

// Publisher delivers saga events to the bus. Implementations must be safe
// for concurrent use; delivery is at-least-once.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}
