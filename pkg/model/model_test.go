package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"ESTABLISHED":  StateEstablished,
		"established":  StateEstablished,
		"FIN_WAIT_1":   StateFinWait1,
		"FIN_WAIT1":    StateFinWait1,
		"fin-wait-2":   StateFinWait2,
		"LISTENING":    StateListen,
		"SYN_RECEIVED": StateSynRecv,
		"TIME_WAIT":    StateTimeWait,
		"CLOSED":       StateClose,
		"NONE":         StateUnknown,
		"":             StateUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseState(in), "input %q", in)
	}
}

func TestStateLingering(t *testing.T) {
	assert.True(t, StateTimeWait.Lingering())
	assert.True(t, StateCloseWait.Lingering())
	assert.False(t, StateEstablished.Lingering())
	assert.False(t, StateListen.Lingering())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("SharedInstance")
	require.NoError(t, err)
	assert.Equal(t, StrategyShared, s)

	s, err = ParseStrategy(" factory ")
	require.NoError(t, err)
	assert.Equal(t, StrategyFactory, s)

	s, err = ParseStrategy("new-per-request")
	require.NoError(t, err)
	assert.Equal(t, StrategyNew, s)

	_, err = ParseStrategy("pooled")
	assert.Error(t, err)
}

func TestSnapshotCountByState(t *testing.T) {
	snap := Snapshot{Records: []ConnectionRecord{
		{RemotePort: 7187, State: StateEstablished},
		{RemotePort: 7187, State: StateTimeWait},
		{RemotePort: 7187, State: StateTimeWait},
	}}
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, map[State]int{StateEstablished: 1, StateTimeWait: 2}, snap.CountByState())
}

func TestProbeResultOutcome(t *testing.T) {
	r := ProbeResult{Iterations: 2}
	assert.False(t, r.AllSucceeded())
	assert.False(t, r.Completed())

	r.Responses = []Response{{Iteration: 1, Success: true, StatusCode: 200}, {Iteration: 2, Success: false}}
	assert.False(t, r.AllSucceeded())
	assert.Equal(t, 1, r.Failures())
	assert.True(t, r.Completed())

	r.Responses[1].Success = true
	assert.True(t, r.AllSucceeded())

	r.Stopped = true
	assert.False(t, r.Completed())
}
