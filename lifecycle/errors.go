package lifecycle

import "fmt"

// MalformedStateError is returned when the DaysCount tag exists but cannot be decoded.
// The engine never repairs the tag; callers decide whether to reset it or skip the resource.
type MalformedStateError struct {
	Value string
	Err   error
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed %s tag %q: %v", DaysCountTag, e.Value, e.Err)
}

func (e *MalformedStateError) Unwrap() error {
	return e.Err
}
