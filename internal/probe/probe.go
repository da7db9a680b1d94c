// Package probe runs repeated-request experiments with a client strategy and
// measures how the live connection count to the endpoint changes.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mateo19851/http-client-test/internal/census"
	"github.com/mateo19851/http-client-test/internal/client"
	"github.com/mateo19851/http-client-test/internal/logger"
	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	// ErrInvalidEndpoint is returned before any census or network activity
	// when the endpoint is not an absolute http(s) URL.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	ErrInvalidIterations = errors.New("iterations must be positive")

	// ErrStopped is returned with the partial result when the run context
	// ends between iterations.
	ErrStopped = errors.New("probe stopped early")
)

// Census captures connection snapshots.
type Census interface {
	Capture(ctx context.Context, filter census.Filter) (model.Snapshot, error)
}

// ProvisionFunc builds the provisioner implementing strategy for endpoint.
type ProvisionFunc func(strategy model.Strategy, endpoint string) (client.Provisioner, error)

// Observer is told about every finished iteration.
type Observer func(done, total int, resp model.Response)

type Probe struct {
	census    Census
	provision ProvisionFunc
	filters   []census.Filter
	settle    time.Duration
	observer  Observer
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Probe)

// WithProvisioner replaces the factory-backed provisioners.
func WithProvisioner(fn ProvisionFunc) Option {
	return func(p *Probe) { p.provision = fn }
}

// WithFilter narrows both censuses beyond the endpoint port.
func WithFilter(filters ...census.Filter) Option {
	return func(p *Probe) { p.filters = append(p.filters, filters...) }
}

// WithSettle waits d after the last request before the final census.
func WithSettle(d time.Duration) Option {
	return func(p *Probe) { p.settle = d }
}

func WithObserver(o Observer) Option {
	return func(p *Probe) { p.observer = o }
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Probe) { p.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(p *Probe) { p.now = now }
}

// New returns a probe taking snapshots from c and, unless overridden,
// provisioning clients from f.
func New(c Census, f *client.Factory, opts ...Option) *Probe {
	p := &Probe{
		census: c,
		provision: func(strategy model.Strategy, endpoint string) (client.Provisioner, error) {
			return client.NewProvisioner(strategy, f, endpoint)
		},
		log:   logger.Get(),
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run issues iterations sequential GET requests to endpoint using strategy
// and reports the change in live connections to the endpoint's port.
//
// Request failures are recorded and never abort the loop. If ctx ends between
// iterations the result collected so far is returned, after census included,
// together with an error wrapping ErrStopped.
func (p *Probe) Run(ctx context.Context, strategy model.Strategy, endpoint string, iterations int) (model.ProbeResult, error) {
	ep, err := ParseEndpoint(endpoint)
	if err != nil {
		return model.ProbeResult{}, err
	}
	if iterations <= 0 {
		return model.ProbeResult{}, fmt.Errorf("%w: got %d", ErrInvalidIterations, iterations)
	}
	prov, err := p.provision(strategy, ep.String())
	if err != nil {
		return model.ProbeResult{}, err
	}

	res := model.ProbeResult{
		RunID:      p.newID(),
		Strategy:   strategy,
		Endpoint:   ep.String(),
		Iterations: iterations,
		StartedAt:  p.now(),
	}
	log := p.log.With("run_id", res.RunID, "strategy", string(strategy), "endpoint", res.Endpoint)
	filter := census.All(append([]census.Filter{matchesEndpointPort(ep)}, p.filters...)...)

	if ctx.Err() != nil {
		prov.Close() //nolint:errcheck
		res.Stopped = true
		return res, fmt.Errorf("%w before the first census: %w", ErrStopped, context.Cause(ctx))
	}

	before, err := p.census.Capture(ctx, filter)
	if err != nil {
		prov.Close() //nolint:errcheck
		log.ErrorWithErr("initial census failed", err)
		return res, fmt.Errorf("capture before: %w", err)
	}
	res.Before = before
	log.Debug("initial census", "connections", before.Len(), "backend", before.Backend)

	res.Responses = make([]model.Response, 0, iterations)
	for i := 1; i <= iterations; i++ {
		if ctx.Err() != nil {
			res.Stopped = true
			break
		}
		resp := p.iterate(ctx, log, prov, ep.String(), i)
		res.Responses = append(res.Responses, resp)
		if !resp.Success {
			log.Debug("request failed", "iteration", i, "status", resp.StatusCode, "error", resp.Error)
		}
		if p.observer != nil {
			p.observer(i, iterations, resp)
		}
		// a request cut short by cancellation stops the run, even the last one
		if !resp.Success && ctx.Err() != nil {
			res.Stopped = true
			break
		}
	}

	// the final census runs even when ctx is done so partial runs still
	// report a delta
	captureCtx := context.WithoutCancel(ctx)
	if p.settle > 0 && !res.Stopped {
		t := time.NewTimer(p.settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
		}
	}

	after, err := p.census.Capture(captureCtx, filter)
	if cerr := prov.Close(); cerr != nil {
		log.WarnWithErr("closing client provisioner", cerr)
	}
	if err != nil {
		log.ErrorWithErr("final census failed", err)
		return res, fmt.Errorf("capture after: %w", err)
	}
	res.After = after
	res.ConnectionDelta = after.Len() - before.Len()
	res.StateDelta = stateDelta(before, after)
	res.Duration = p.now().Sub(res.StartedAt)

	log.Info("probe finished",
		"responses", len(res.Responses),
		"failures", res.Failures(),
		"before", before.Len(),
		"after", after.Len(),
		"delta", res.ConnectionDelta,
	)

	if res.Stopped {
		return res, fmt.Errorf("%w after %d of %d iterations: %w", ErrStopped, len(res.Responses), iterations, context.Cause(ctx))
	}
	return res, nil
}

func (p *Probe) iterate(ctx context.Context, log *logger.Logger, prov client.Provisioner, url string, i int) model.Response {
	start := p.now()
	resp := model.Response{Iteration: i}

	h, err := prov.Acquire()
	if err != nil {
		resp.Error = fmt.Sprintf("acquire client: %v", err)
		resp.Duration = p.now().Sub(start)
		return resp
	}

	code, err := h.Get(ctx, url)
	resp.StatusCode = code
	switch {
	case err != nil:
		resp.Error = err.Error()
	case code < 200 || code > 299:
		resp.Error = fmt.Sprintf("unexpected status %d", code)
	default:
		resp.Success = true
	}

	if err := prov.Release(h); err != nil {
		log.WarnWithErr("releasing client", err, "iteration", i)
	}
	resp.Duration = p.now().Sub(start)
	return resp
}

// stateDelta returns after minus before per state, without zero entries.
func stateDelta(before, after model.Snapshot) map[model.State]int {
	delta := after.CountByState()
	for state, n := range before.CountByState() {
		delta[state] -= n
	}
	for state, n := range delta {
		if n == 0 {
			delete(delta, state)
		}
	}
	return delta
}
