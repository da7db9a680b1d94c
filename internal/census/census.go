// Package census takes point-in-time snapshots of the OS TCP connection
// table.
package census

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	// ErrPlatformUnavailable is returned when the host does not expose a
	// connection table the census can read.
	ErrPlatformUnavailable = errors.New("connection census unavailable on this platform")

	// ErrUnknownBackend is returned for a backend name New does not know.
	ErrUnknownBackend = errors.New("unknown census backend")
)

const (
	BackendAuto     = "auto"
	BackendProcNet  = "procnet"
	BackendGopsutil = "gopsutil"
	BackendNetstat  = "netstat"
)

// Source enumerates the TCP connections currently known to the OS.
type Source interface {
	Name() string
	Connections(ctx context.Context) ([]model.ConnectionRecord, error)
}

// Census captures filtered snapshots from a Source. It keeps no state
// between captures.
type Census struct {
	source Source
	now    func() time.Time
}

// Options tune the census built by New.
type Options struct {
	// ProcRoot overrides /proc for the procnet backend.
	ProcRoot string
	// AttributePIDs makes the procnet backend map sockets to owning
	// processes, which OwnedBy needs.
	AttributePIDs bool
}

// New returns a census reading from the named backend.
func New(backend string, opts Options) (*Census, error) {
	if backend == "" || backend == BackendAuto {
		backend = defaultBackend
	}

	var src Source
	switch backend {
	case BackendProcNet:
		src = &ProcNet{Root: opts.ProcRoot, AttributePIDs: opts.AttributePIDs}
	case BackendGopsutil:
		src = &Gopsutil{}
	case BackendNetstat:
		src = &Netstat{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
	return FromSource(src), nil
}

// FromSource wraps an arbitrary Source.
func FromSource(src Source) *Census {
	return &Census{source: src, now: time.Now}
}

// Backend returns the name of the underlying source.
func (c *Census) Backend() string {
	return c.source.Name()
}

// Capture reads the connection table once and keeps the records matching
// filter. A nil filter keeps everything. Failures are not retried.
func (c *Census) Capture(ctx context.Context, filter Filter) (model.Snapshot, error) {
	records, err := c.source.Connections(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}

	snap := model.Snapshot{
		Backend:    c.source.Name(),
		CapturedAt: c.now(),
		Records:    make([]model.ConnectionRecord, 0, len(records)),
	}
	for _, r := range records {
		if filter == nil || filter(r) {
			snap.Records = append(snap.Records, r)
		}
	}
	return snap, nil
}
