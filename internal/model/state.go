// Package model contains shared domain types for the gateway.
package model

// CircuitState represents the circuit breaker state of one key.
type CircuitState string

const (
	// CircuitClosed is the normal operating state.
	CircuitClosed CircuitState = "closed"
	// CircuitOpen means the key is rejecting traffic until the recovery
	// timeout elapses.
	CircuitOpen CircuitState = "open"
	// CircuitHalfOpen means the key is accepting exactly one probe request.
	CircuitHalfOpen CircuitState = "half_open"
)

// String returns the string representation of CircuitState.
func (s CircuitState) String() string {
	return string(s)
}

// Mode selects the provider model used for a generation request.
type Mode string

const (
	// ModeText routes to the text model.
	ModeText Mode = "text"
	// ModeVision routes to the multimodal model and requires image data.
	ModeVision Mode = "vision"
)
