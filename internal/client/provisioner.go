package client

import (
	"fmt"
	"sync"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// Provisioner hands out a handle per request and applies the strategy's
// disposal contract.
type Provisioner interface {
	Acquire() (Handle, error)
	// Release is called after each request with the handle Acquire returned.
	Release(Handle) error
	// Close is called once the run is over.
	Close() error
}

// NewProvisioner returns the provisioner implementing strategy against
// endpoint.
func NewProvisioner(strategy model.Strategy, f *Factory, endpoint string) (Provisioner, error) {
	switch strategy {
	case model.StrategyNew:
		return &perRequest{create: f.NewHandle}, nil
	case model.StrategyFactory:
		return &perRequest{create: func() (Handle, error) {
			return f.HandleFor(endpoint)
		}}, nil
	case model.StrategyShared:
		return &shared{create: f.NewHandle}, nil
	}
	return nil, fmt.Errorf("no provisioner for strategy %q", strategy)
}

// perRequest creates a handle for every request and disposes it right after.
type perRequest struct {
	create func() (Handle, error)
}

func (p *perRequest) Acquire() (Handle, error) { return p.create() }

func (p *perRequest) Release(h Handle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func (p *perRequest) Close() error { return nil }

// shared creates one handle on first use and keeps it until Close.
type shared struct {
	create func() (Handle, error)

	mu     sync.Mutex
	handle Handle
}

func (s *shared) Acquire() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		h, err := s.create()
		if err != nil {
			return nil, err
		}
		s.handle = h
	}
	return s.handle, nil
}

// Release never disposes the shared handle mid-run.
func (s *shared) Release(Handle) error { return nil }

func (s *shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return nil
	}
	err := s.handle.Close()
	s.handle = nil
	return err
}
