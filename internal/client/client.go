// Package client provisions HTTP client handles for probe runs and
// implements the disposal contract of each client strategy.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
)

// drainLimit bounds how much of a response body is read so the connection
// can go back to the pool.
const drainLimit = 1 << 20

// ErrHandleClosed is returned by Get on a disposed handle.
var ErrHandleClosed = errors.New("client handle closed")

// Handle is a request-capable client.
type Handle interface {
	// Get issues one GET and returns the response status code.
	Get(ctx context.Context, url string) (int, error)
	// Close disposes the handle. It is safe to call more than once.
	Close() error
}

type httpHandle struct {
	client *http.Client
	// owned handles hold a private transport and tear it down on Close
	owned bool

	mu     sync.Mutex
	closed bool
}

func (h *httpHandle) Get(ctx context.Context, rawURL string) (int, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 0, ErrHandleClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit)); err != nil {
		return resp.StatusCode, fmt.Errorf("drain response body: %w", err)
	}
	return resp.StatusCode, nil
}

func (h *httpHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if h.owned {
		h.client.CloseIdleConnections()
	}
	return nil
}

// Factory creates client handles from one set of settings. Transports handed
// out by HandleFor are cached per scheme and host and outlive the handles.
type Factory struct {
	settings Settings

	mu         sync.Mutex
	transports map[string]*http.Transport
}

func NewFactory(settings Settings) *Factory {
	return &Factory{
		settings:   settings,
		transports: make(map[string]*http.Transport),
	}
}

// Settings returns the settings handles are built with.
func (f *Factory) Settings() Settings {
	return f.settings
}

// NewHandle returns a client with a brand-new transport of its own.
func (f *Factory) NewHandle() (Handle, error) {
	tr, err := newTransport(f.settings)
	if err != nil {
		return nil, err
	}
	return &httpHandle{client: f.newClient(tr), owned: true}, nil
}

// HandleFor returns a new client for endpoint that shares the factory's
// pooled transport for that scheme and host.
func (f *Factory) HandleFor(endpoint string) (Handle, error) {
	tr, err := f.transportFor(endpoint)
	if err != nil {
		return nil, err
	}
	return &httpHandle{client: f.newClient(tr)}, nil
}

func (f *Factory) transportFor(endpoint string) (*http.Transport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	key := u.Scheme + "://" + u.Host

	f.mu.Lock()
	defer f.mu.Unlock()
	tr, ok := f.transports[key]
	if !ok {
		tr, err = newTransport(f.settings)
		if err != nil {
			return nil, err
		}
		f.transports[key] = tr
	}
	return tr, nil
}

func (f *Factory) newClient(tr *http.Transport) *http.Client {
	var rt http.RoundTripper = tr
	if len(f.settings.Headers) > 0 {
		rt = &headerTransport{Base: tr, Headers: f.settings.Headers}
	}
	return &http.Client{
		Transport: rt,
		Timeout:   f.settings.Timeout,
	}
}

// Close drops idle connections of every pooled transport.
func (f *Factory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, tr := range f.transports {
		tr.CloseIdleConnections()
		delete(f.transports, key)
	}
}
