package sensor

import "fmt"

// ValidationError indicates a malformed packet: a missing axis, an
// out-of-range or non-finite value. The packet is rejected before any
// persistence; the caller sees the error, nothing is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid packet field %s: %s", e.Field, e.Reason)
}
