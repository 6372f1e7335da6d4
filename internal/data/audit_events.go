package data

// AuditEventType defines audit event type constants.
// These constants are used for audit logging in the key_audit_logs table.
type AuditEventType string

const (
	// AuditEventCircuitOpened is logged when a key's circuit breaker opens
	AuditEventCircuitOpened AuditEventType = "CIRCUIT_OPENED"

	// AuditEventCircuitClosed is logged when a key's circuit breaker recovers
	AuditEventCircuitClosed AuditEventType = "CIRCUIT_CLOSED"

	// AuditEventCircuitHalfOpen is logged when a key starts a recovery probe
	AuditEventCircuitHalfOpen AuditEventType = "CIRCUIT_HALF_OPEN"

	// AuditEventKeyDisabled is logged when a key is permanently disabled
	AuditEventKeyDisabled AuditEventType = "KEY_DISABLED"

	// AuditEventRateLimitDenied is logged when window admission is denied
	AuditEventRateLimitDenied AuditEventType = "RATE_LIMIT_DENIED"

	// AuditEventFallbackServed is logged when a degraded response is synthesized
	AuditEventFallbackServed AuditEventType = "FALLBACK_SERVED"

	// AuditEventPoolReset is logged when an operator resets all circuits
	AuditEventPoolReset AuditEventType = "POOL_RESET"
)

// String returns the string representation of AuditEventType
func (e AuditEventType) String() string {
	return string(e)
}
