package output

import (
	"fmt"
	"io"

	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	colorResetShort = "\033[0m"
	colorRedShort   = "\033[31m"
	colorDimShort   = "\033[2m"
	colorGreenShort = "\033[32m"
)

// RenderShort prints one line per result: strategy, successes, delta and
// verdict.
func RenderShort(w io.Writer, r model.ProbeResult, verdict error, colorEnabled bool) {
	status := "PASS"
	statusColor := colorGreenShort
	if verdict != nil {
		status = "FAIL"
		statusColor = colorRedShort
	}
	if r.Stopped {
		status = "STOPPED"
		statusColor = colorRedShort
	}

	ok := len(r.Responses) - r.Failures()
	line := fmt.Sprintf("%-8s %d/%d ok  delta %+d (%d -> %d)",
		r.Strategy, ok, r.Iterations, r.ConnectionDelta, r.Before.Len(), r.After.Len())

	if colorEnabled {
		fmt.Fprintf(w, "%s  %s%s%s %s%s%s\n", line, statusColor, status, colorResetShort, colorDimShort, r.Endpoint, colorResetShort)
	} else {
		fmt.Fprintf(w, "%s  %s %s\n", line, status, r.Endpoint)
	}
}
