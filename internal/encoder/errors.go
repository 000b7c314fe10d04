package encoder

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBudgetUnreachable is returned when the search exhausts its trial
// bound without producing an artifact within the byte budget.
var ErrBudgetUnreachable = errors.New("size budget unreachable")

// EncodeError reports a failed external invocation, carrying the stage
// name and the diagnostic stream captured from the encoder.
type EncodeError struct {
	Stage  string
	Stderr string
	Err    error
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Stage, e.Err)
	if d := strings.TrimSpace(e.Stderr); d != "" {
		msg += "\n" + d
	}
	return msg
}

func (e *EncodeError) Unwrap() error { return e.Err }
