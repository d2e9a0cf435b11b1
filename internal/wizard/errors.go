/**
 * @description
 * Error taxonomy for the wizard engine. Expected failures are ordinary typed
 * return values, never panics: a validation failure keeps the run on its
 * current step with the offending field named; gateway failures are split
 * between business rejections (eligibility) and connectivity (transport); the
 * payment-processing effect has its own failure kind. Handlers map each type
 * to a distinct HTTP status with errors.As/errors.Is.
 */

package wizard

import (
	"errors"
	"fmt"
)

// ErrRunBusy is returned when Advance is called while a previous step effect
// is still in flight for the same run. At most one advance per run may be
// outstanding; the caller disables input during that window.
var ErrRunBusy = errors.New("a step effect is already in flight for this run")

// ErrRunComplete is returned by Advance on the terminal step. It signals
// "run complete, discard" to the caller rather than continuing the machine.
var ErrRunComplete = errors.New("wizard run is already complete")

// ValidationError reports that a step's input does not satisfy its predicate.
// The run stays on the current step; nothing is lost.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// EligibilityError reports that the airtime gateway explicitly rejected the
// phone number as ineligible for a recharge. Recoverable: the user corrects
// the number and retries from the same step.
type EligibilityError struct {
	Message string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("recipient not eligible: %s", e.Message)
}

// TransportError reports that a gateway call could not complete at all
// (network, DNS, proxy). It is deliberately distinct from EligibilityError so
// the user sees a connectivity message rather than a business rejection.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProcessingError reports that the payment-processing effect failed after
// validation passed. The run remains on the pre-terminal step; no auto-retry.
type ProcessingError struct {
	Err error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("payment processing failed: %v", e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }
