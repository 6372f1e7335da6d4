package biz

import "context"

// AuditLogger records key state transitions for the operator-facing audit
// trail. Implementations must never block the request path and must never
// receive the raw secret, only the key ID.
type AuditLogger interface {
	// Record emits one state-transition event. prevState/nextState may be
	// empty for events that are not circuit transitions.
	Record(ctx context.Context, keyID, eventType, prevState, nextState string, details map[string]interface{})
}
