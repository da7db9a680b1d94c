package model

import (
	"strings"
	"time"
)

// State is a TCP connection state as reported by the OS.
type State string

const (
	StateEstablished State = "ESTABLISHED"
	StateSynSent     State = "SYN_SENT"
	StateSynRecv     State = "SYN_RECV"
	StateFinWait1    State = "FIN_WAIT1"
	StateFinWait2    State = "FIN_WAIT2"
	StateTimeWait    State = "TIME_WAIT"
	StateClose       State = "CLOSE"
	StateCloseWait   State = "CLOSE_WAIT"
	StateLastAck     State = "LAST_ACK"
	StateListen      State = "LISTEN"
	StateClosing     State = "CLOSING"
	StateUnknown     State = "UNKNOWN"
)

// ParseState normalises the spellings used by the kernel, gopsutil and
// netstat into a State.
func ParseState(s string) State {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	switch norm {
	case "ESTABLISHED":
		return StateEstablished
	case "SYN_SENT":
		return StateSynSent
	case "SYN_RECV", "SYN_RECEIVED", "SYN_RCVD":
		return StateSynRecv
	case "FIN_WAIT1", "FIN_WAIT_1":
		return StateFinWait1
	case "FIN_WAIT2", "FIN_WAIT_2":
		return StateFinWait2
	case "TIME_WAIT":
		return StateTimeWait
	case "CLOSE", "CLOSED":
		return StateClose
	case "CLOSE_WAIT":
		return StateCloseWait
	case "LAST_ACK":
		return StateLastAck
	case "LISTEN", "LISTENING":
		return StateListen
	case "CLOSING":
		return StateClosing
	}
	return StateUnknown
}

// Lingering reports whether the state belongs to a connection that is being
// torn down but still occupies a slot in the connection table.
func (s State) Lingering() bool {
	switch s {
	case StateTimeWait, StateCloseWait, StateFinWait1, StateFinWait2, StateLastAck, StateClosing:
		return true
	}
	return false
}

// ConnectionRecord is one row of the OS TCP connection table.
type ConnectionRecord struct {
	Protocol   string `json:"protocol"` // TCP or TCP6
	LocalAddr  string `json:"localAddr"`
	LocalPort  int    `json:"localPort"`
	RemoteAddr string `json:"remoteAddr"`
	RemotePort int    `json:"remotePort"`
	State      State  `json:"state"`
	PID        int    `json:"pid,omitempty"` // 0 when not attributed
}

// Snapshot is the set of connections observed at one instant. It is only
// meaningful at CapturedAt.
type Snapshot struct {
	Backend    string             `json:"backend"`
	CapturedAt time.Time          `json:"capturedAt"`
	Records    []ConnectionRecord `json:"records"`
}

func (s Snapshot) Len() int {
	return len(s.Records)
}

// CountByState returns the number of records per state.
func (s Snapshot) CountByState() map[State]int {
	counts := make(map[State]int)
	for _, r := range s.Records {
		counts[r.State]++
	}
	return counts
}
