package probe

import (
	"errors"
	"fmt"

	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	ErrDeltaOutOfBounds = errors.New("connection delta out of bounds")
	ErrResponsesFailed  = errors.New("responses failed")
)

// Expectation is what a run must satisfy to pass. The delta bound depends on
// OS teardown timing, keep-alive and TIME_WAIT duration, so it is
// configurable rather than fixed at 1.
type Expectation struct {
	MinDelta       int
	MaxDelta       int
	RequireSuccess bool
}

// DefaultExpectation allows at most one new connection to the endpoint and
// requires every response to be 2xx.
func DefaultExpectation() Expectation {
	return Expectation{MinDelta: 0, MaxDelta: 1, RequireSuccess: true}
}

// Check returns nil when r meets the expectation, or the violations joined.
func (e Expectation) Check(r model.ProbeResult) error {
	var errs []error
	if r.ConnectionDelta < e.MinDelta || r.ConnectionDelta > e.MaxDelta {
		errs = append(errs, fmt.Errorf("%w: %d not in [%d, %d]", ErrDeltaOutOfBounds, r.ConnectionDelta, e.MinDelta, e.MaxDelta))
	}
	if e.RequireSuccess && !r.AllSucceeded() {
		errs = append(errs, fmt.Errorf("%w: %d of %d", ErrResponsesFailed, r.Failures(), len(r.Responses)))
	}
	return errors.Join(errs...)
}
