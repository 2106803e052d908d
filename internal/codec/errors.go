package codec

import (
	"errors"
	"fmt"
)

// ErrUnknownVariant is returned for a type tag the codec does not know
var ErrUnknownVariant = errors.New("unknown variant")

// DecodeError describes one stored trigger or action that could not be decoded
type DecodeError struct {
	Index int    // position in the stored list, -1 for a single value
	Type  string // type tag as found, may be empty
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("decode entry %d (type %q): %v", e.Index, e.Type, e.Err)
	}
	return fmt.Sprintf("decode type %q: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
