package conversation

import (
	"context"
	"fmt"
)

// Store persists per-(session, knowledge base) message history.
//
// History and Append are deliberately errorless: implementations absorb
// backend failures and degrade to stateless operation (empty history,
// dropped append) so that a generation never fails on persistence. Clear is
// an explicit user action and surfaces failures.
type Store interface {
	// History returns the messages for (sessionID, kbID) in append order.
	// Returns an empty slice if the key is absent, expired, or the backend
	// is unreachable.
	History(ctx context.Context, sessionID, kbID string) []Message

	// Append atomically appends messages and resets the TTL. Best-effort:
	// failures are logged by the implementation, never raised.
	Append(ctx context.Context, sessionID, kbID string, msgs ...Message)

	// Clear removes the history for (sessionID, kbID).
	Clear(ctx context.Context, sessionID, kbID string) error
}

// Key returns the storage key for a (session, knowledge base) pair.
// Each knowledge base carries an independently expiring history per session.
func Key(sessionID, kbID string) string {
	return fmt.Sprintf("conversation:%s:%s", sessionID, kbID)
}
