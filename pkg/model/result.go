package model

import "time"

// Response is the outcome of one iteration of a probe run.
type Response struct {
	Iteration  int           `json:"iteration"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"statusCode"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ProbeResult is produced once per probe run.
type ProbeResult struct {
	RunID           string        `json:"runId"`
	Strategy        Strategy      `json:"strategy"`
	Endpoint        string        `json:"endpoint"`
	Iterations      int           `json:"iterations"`
	Responses       []Response    `json:"responses"`
	Before          Snapshot      `json:"before"`
	After           Snapshot      `json:"after"`
	ConnectionDelta int           `json:"connectionDelta"`
	StateDelta      map[State]int `json:"stateDelta,omitempty"`
	Stopped         bool          `json:"stopped"`
	StartedAt       time.Time     `json:"startedAt"`
	Duration        time.Duration `json:"duration"`
}

// AllSucceeded reports whether every recorded response was a success. A run
// with no responses did not succeed.
func (r ProbeResult) AllSucceeded() bool {
	if len(r.Responses) == 0 {
		return false
	}
	return r.Failures() == 0
}

func (r ProbeResult) Failures() int {
	n := 0
	for _, resp := range r.Responses {
		if !resp.Success {
			n++
		}
	}
	return n
}

// Completed reports whether every requested iteration ran.
func (r ProbeResult) Completed() bool {
	return !r.Stopped && len(r.Responses) == r.Iterations
}
