package probe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/mateo19851/http-client-test/internal/census"
	"github.com/mateo19851/http-client-test/internal/client"
	"github.com/mateo19851/http-client-test/internal/logger"
	"github.com/mateo19851/http-client-test/internal/testserver"
	"github.com/mateo19851/http-client-test/pkg/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeCensus serves a fixed connection table per call; the last table
// repeats.
type fakeCensus struct {
	mu     sync.Mutex
	calls  int
	tables [][]model.ConnectionRecord
	err    error
}

func (f *fakeCensus) Capture(_ context.Context, filter census.Filter) (model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return model.Snapshot{}, f.err
	}
	snap := model.Snapshot{Backend: "fake", CapturedAt: time.Now()}
	if len(f.tables) == 0 {
		return snap, nil
	}
	idx := f.calls - 1
	if idx >= len(f.tables) {
		idx = len(f.tables) - 1
	}
	for _, r := range f.tables[idx] {
		if filter(r) {
			snap.Records = append(snap.Records, r)
		}
	}
	return snap, nil
}

func (f *fakeCensus) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeHandle struct {
	code   int
	err    error
	closed bool
	// get overrides code and err when set
	get func(ctx context.Context) (int, error)
}

func (h *fakeHandle) Get(ctx context.Context, _ string) (int, error) {
	if h.get != nil {
		return h.get(ctx)
	}
	return h.code, h.err
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return nil
}

type fakeProvisioner struct {
	next       func(i int) (*fakeHandle, error)
	acquired   int
	released   int
	closed     bool
	closeCalls int
}

func (p *fakeProvisioner) Acquire() (client.Handle, error) {
	p.acquired++
	h, err := p.next(p.acquired)
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (p *fakeProvisioner) Release(h client.Handle) error {
	p.released++
	return h.Close()
}

func (p *fakeProvisioner) Close() error {
	p.closed = true
	p.closeCalls++
	return nil
}

func withFake(p *fakeProvisioner) Option {
	return WithProvisioner(func(model.Strategy, string) (client.Provisioner, error) {
		return p, nil
	})
}

func quiet() Option {
	return WithLogger(logger.Discard())
}

func rec(remotePort int, state model.State) model.ConnectionRecord {
	return model.ConnectionRecord{
		Protocol:   "TCP",
		LocalAddr:  "127.0.0.1",
		RemoteAddr: "127.0.0.1",
		RemotePort: remotePort,
		State:      state,
	}
}

func TestRunInvalidEndpoint(t *testing.T) {
	for _, raw := range []string{"not a url", "ftp://example.com/", "http://", "http://host:99999/", "://x", "/WeatherForecast"} {
		fc := &fakeCensus{}
		p := New(fc, client.NewFactory(client.DefaultSettings), quiet())

		_, err := p.Run(context.Background(), model.StrategyShared, raw, 100)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrInvalidEndpoint), raw)
		assert.Equal(t, 0, fc.Calls(), raw)
	}
}

func TestRunInvalidIterations(t *testing.T) {
	fc := &fakeCensus{}
	p := New(fc, client.NewFactory(client.DefaultSettings), quiet())
	_, err := p.Run(context.Background(), model.StrategyShared, "http://127.0.0.1:7187/", 0)
	assert.True(t, errors.Is(err, ErrInvalidIterations))
	assert.Equal(t, 0, fc.Calls())
}

func TestRunUnknownStrategy(t *testing.T) {
	fc := &fakeCensus{}
	p := New(fc, client.NewFactory(client.DefaultSettings), quiet())
	_, err := p.Run(context.Background(), model.Strategy("pooled"), "http://127.0.0.1:7187/", 1)
	assert.Error(t, err)
	assert.Equal(t, 0, fc.Calls())
}

func TestRunRecordsEveryIteration(t *testing.T) {
	for _, strategy := range model.Strategies {
		t.Run(string(strategy), func(t *testing.T) {
			srv := testserver.New(t)
			f := client.NewFactory(client.DefaultSettings)
			t.Cleanup(f.Close)

			var observed []int
			p := New(&fakeCensus{}, f, quiet(), WithObserver(func(done, total int, _ model.Response) {
				assert.Equal(t, 25, total)
				observed = append(observed, done)
			}))

			res, err := p.Run(context.Background(), strategy, srv.Endpoint(), 25)
			require.NoError(t, err)
			require.Len(t, res.Responses, 25)
			assert.True(t, res.AllSucceeded())
			assert.True(t, res.Completed())
			assert.Equal(t, 25, srv.Requests())
			assert.Len(t, observed, 25)
			for i, r := range res.Responses {
				assert.Equal(t, i+1, r.Iteration)
				assert.Equal(t, 200, r.StatusCode)
			}
			assert.Equal(t, strategy, res.Strategy)
			assert.NotEmpty(t, res.RunID)
		})
	}
}

func TestRunUnreachableEndpoint(t *testing.T) {
	fc := &fakeCensus{}
	f := client.NewFactory(client.DefaultSettings)
	defer f.Close()
	p := New(fc, f, quiet())

	res, err := p.Run(context.Background(), model.StrategyShared, testserver.UnusedEndpoint(t), 100)
	require.NoError(t, err)
	require.Len(t, res.Responses, 100)
	for _, r := range res.Responses {
		assert.False(t, r.Success)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, 100, res.Failures())
	assert.Equal(t, 2, fc.Calls())
}

func TestRunNon2xxIsFailure(t *testing.T) {
	srv := testserver.New(t)
	f := client.NewFactory(client.DefaultSettings)
	defer f.Close()
	p := New(&fakeCensus{}, f, quiet())

	res, err := p.Run(context.Background(), model.StrategyFactory, srv.StatusEndpoint(503), 3)
	require.NoError(t, err)
	for _, r := range res.Responses {
		assert.False(t, r.Success)
		assert.Equal(t, 503, r.StatusCode)
		assert.Contains(t, r.Error, "503")
	}
}

func TestRunComputesDelta(t *testing.T) {
	fc := &fakeCensus{tables: [][]model.ConnectionRecord{
		{rec(7187, model.StateEstablished), rec(7187, model.StateTimeWait), rec(80, model.StateEstablished)},
		{rec(7187, model.StateEstablished), rec(7187, model.StateEstablished), rec(7187, model.StateTimeWait), rec(7187, model.StateTimeWait), rec(443, model.StateEstablished)},
	}}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp))

	res, err := p.Run(context.Background(), model.StrategyNew, "http://127.0.0.1:7187/WeatherForecast", 4)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Before.Len())
	assert.Equal(t, 4, res.After.Len())
	assert.Equal(t, 2, res.ConnectionDelta)
	assert.Equal(t, map[model.State]int{model.StateEstablished: 1, model.StateTimeWait: 1}, res.StateDelta)
	assert.Equal(t, 4, fp.acquired)
	assert.Equal(t, 4, fp.released)
	assert.True(t, fp.closed)
}

func TestRunDefaultPortFromScheme(t *testing.T) {
	fc := &fakeCensus{tables: [][]model.ConnectionRecord{
		{rec(443, model.StateEstablished), rec(80, model.StateEstablished)},
	}}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 204}, nil }}
	p := New(fc, nil, quiet(), withFake(fp))

	res, err := p.Run(context.Background(), model.StrategyShared, "https://example.test/health", 1)
	require.NoError(t, err)
	require.Equal(t, 1, res.Before.Len())
	assert.Equal(t, 443, res.Before.Records[0].RemotePort)
}

func TestRunExtraFilters(t *testing.T) {
	fc := &fakeCensus{tables: [][]model.ConnectionRecord{
		{rec(7187, model.StateEstablished), rec(7187, model.StateTimeWait)},
	}}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp), WithFilter(census.InStates(model.StateEstablished)))

	res, err := p.Run(context.Background(), model.StrategyShared, "http://127.0.0.1:7187/", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Before.Len())
}

func TestRunRecordsAcquireAndTransportFailures(t *testing.T) {
	fp := &fakeProvisioner{next: func(i int) (*fakeHandle, error) {
		switch i {
		case 2:
			return nil, errors.New("no sockets left")
		case 3:
			return &fakeHandle{err: errors.New("connection reset by peer")}, nil
		}
		return &fakeHandle{code: 200}, nil
	}}
	p := New(&fakeCensus{}, nil, quiet(), withFake(fp))

	res, err := p.Run(context.Background(), model.StrategyNew, "http://127.0.0.1:7187/", 4)
	require.NoError(t, err)
	require.Len(t, res.Responses, 4)
	assert.True(t, res.Responses[0].Success)
	assert.Contains(t, res.Responses[1].Error, "no sockets left")
	assert.Contains(t, res.Responses[2].Error, "connection reset")
	assert.True(t, res.Responses[3].Success)
	assert.Equal(t, 3, fp.released)
}

func TestRunStoppedKeepsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := &fakeCensus{}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp), WithSettle(time.Hour), WithObserver(func(done, _ int, _ model.Response) {
		if done == 3 {
			cancel()
		}
	}))

	res, err := p.Run(ctx, model.StrategyShared, "http://127.0.0.1:7187/", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Stopped)
	assert.False(t, res.Completed())
	assert.Len(t, res.Responses, 3)
	assert.Equal(t, 2, fc.Calls(), "after census still taken")
	assert.True(t, fp.closed)
}

func TestRunCancelledDuringLastRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fc := &fakeCensus{}
	fp := &fakeProvisioner{next: func(i int) (*fakeHandle, error) {
		if i < 5 {
			return &fakeHandle{code: 200}, nil
		}
		return &fakeHandle{get: func(ctx context.Context) (int, error) {
			cancel()
			return 0, ctx.Err()
		}}, nil
	}}
	p := New(fc, nil, quiet(), withFake(fp))

	res, err := p.Run(ctx, model.StrategyShared, "http://127.0.0.1:7187/", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Stopped)
	assert.False(t, res.Completed())
	require.Len(t, res.Responses, 5)
	assert.False(t, res.Responses[4].Success)
	assert.Equal(t, 2, fc.Calls(), "after census still taken")
	assert.True(t, fp.closed)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc := &fakeCensus{}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp))

	res, err := p.Run(ctx, model.StrategyShared, "http://127.0.0.1:7187/", 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStopped))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, res.Stopped)
	assert.Empty(t, res.Responses)
	assert.Equal(t, 0, fc.Calls())
	assert.Equal(t, 0, fp.acquired)
	assert.True(t, fp.closed)
}

func TestRunCensusUnavailable(t *testing.T) {
	srv := testserver.New(t)
	fc := &fakeCensus{err: census.ErrPlatformUnavailable}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp))

	_, err := p.Run(context.Background(), model.StrategyShared, srv.Endpoint(), 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, census.ErrPlatformUnavailable))
	assert.Equal(t, 0, fp.acquired)
	assert.Equal(t, 0, srv.Requests())
	assert.True(t, fp.closed)
}

func TestRunTakesFreshSnapshots(t *testing.T) {
	fc := &fakeCensus{}
	fp := &fakeProvisioner{next: func(int) (*fakeHandle, error) { return &fakeHandle{code: 200}, nil }}
	p := New(fc, nil, quiet(), withFake(fp))

	for i := 0; i < 2; i++ {
		_, err := p.Run(context.Background(), model.StrategyShared, "http://127.0.0.1:7187/", 1)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, fc.Calls())
}

func TestCompare(t *testing.T) {
	srv := testserver.New(t)
	f := client.NewFactory(client.DefaultSettings)
	defer f.Close()
	fc := &fakeCensus{}
	p := New(fc, f, quiet())

	results, err := p.Compare(context.Background(), srv.Endpoint(), 5)
	require.NoError(t, err)
	require.Len(t, results, len(model.Strategies))
	for i, res := range results {
		assert.Equal(t, model.Strategies[i], res.Strategy)
		assert.Len(t, res.Responses, 5)
	}
	assert.Equal(t, 2*len(model.Strategies), fc.Calls())
}

func TestCompareStopsOnFatalError(t *testing.T) {
	p := New(&fakeCensus{}, client.NewFactory(client.DefaultSettings), quiet())
	results, err := p.Compare(context.Background(), "not a url", 5, model.StrategyShared, model.StrategyNew)
	assert.True(t, errors.Is(err, ErrInvalidEndpoint))
	assert.Empty(t, results)
}

func TestExpectationCheck(t *testing.T) {
	ok := model.ProbeResult{
		ConnectionDelta: 1,
		Responses:       []model.Response{{Success: true}, {Success: true}},
	}
	assert.NoError(t, DefaultExpectation().Check(ok))

	leaky := ok
	leaky.ConnectionDelta = 100
	err := DefaultExpectation().Check(leaky)
	assert.True(t, errors.Is(err, ErrDeltaOutOfBounds))
	assert.False(t, errors.Is(err, ErrResponsesFailed))

	failed := model.ProbeResult{Responses: []model.Response{{Success: false}}}
	err = DefaultExpectation().Check(failed)
	assert.True(t, errors.Is(err, ErrResponsesFailed))
	assert.Contains(t, err.Error(), "1 of 1")

	lenient := Expectation{MinDelta: 0, MaxDelta: 100}
	assert.NoError(t, lenient.Check(leaky))
	assert.NoError(t, lenient.Check(failed))
}

func TestParseEndpoint(t *testing.T) {
	ep, err := ParseEndpoint("https://localhost:7187/WeatherForecast")
	require.NoError(t, err)
	assert.Equal(t, "localhost", ep.Host)
	assert.Equal(t, 7187, ep.Port)
	assert.Equal(t, "localhost:7187", ep.Address())

	ep, err = ParseEndpoint("HTTP://[::1]/x")
	require.NoError(t, err)
	assert.Equal(t, 80, ep.Port)
	assert.Equal(t, "[::1]:80", ep.Address())
}

// liveRun probes a fixture server using the host's real connection table.
func liveRun(t *testing.T, strategy model.Strategy, n int) model.ProbeResult {
	t.Helper()
	c, err := census.New(census.BackendAuto, census.Options{})
	require.NoError(t, err)
	if _, err := c.Capture(context.Background(), nil); errors.Is(err, census.ErrPlatformUnavailable) {
		t.Skipf("no connection table: %v", err)
	}

	srv := testserver.New(t)
	f := client.NewFactory(client.DefaultSettings)
	t.Cleanup(f.Close)

	res, err := New(c, f, quiet()).Run(context.Background(), strategy, srv.Endpoint(), n)
	require.NoError(t, err)
	require.Len(t, res.Responses, n)
	assert.True(t, res.AllSucceeded())
	return res
}

func TestLiveSharedInstanceReusesOneConnection(t *testing.T) {
	res := liveRun(t, model.StrategyShared, 100)
	assert.Equal(t, 1, res.ConnectionDelta)
	assert.NoError(t, DefaultExpectation().Check(res))
}

func TestLiveFactoryReusesPooledConnection(t *testing.T) {
	res := liveRun(t, model.StrategyFactory, 50)
	assert.Equal(t, 1, res.ConnectionDelta)
}

func TestLiveNewPerRequestScales(t *testing.T) {
	res := liveRun(t, model.StrategyNew, 20)
	// only procfs lists TIME_WAIT sockets that no longer have a descriptor
	if res.After.Backend != census.BackendProcNet {
		t.Skipf("backend %s does not report TIME_WAIT", res.After.Backend)
	}
	assert.Greater(t, res.ConnectionDelta, 1)
	assert.True(t, errors.Is(DefaultExpectation().Check(res), ErrDeltaOutOfBounds))
}
