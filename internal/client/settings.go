package client

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DefaultSettings mirror net/http's DefaultTransport with tighter dial and
// header timeouts.
var DefaultSettings = Settings{
	Timeout:          10 * time.Second,
	Connect:          2 * time.Second,
	ExpectContinue:   1 * time.Second,
	IdleConn:         90 * time.Second,
	ConnKeepAlive:    30 * time.Second,
	MaxAllIdleConns:  100,
	MaxHostIdleConns: 10,
	ResponseHeader:   5 * time.Second,
	TLSHandshake:     2 * time.Second,
}

// Settings defines the HTTP settings for clients
type Settings struct {
	Timeout           time.Duration
	Connect           time.Duration
	ConnKeepAlive     time.Duration
	ExpectContinue    time.Duration
	IdleConn          time.Duration
	MaxAllIdleConns   int
	MaxHostIdleConns  int
	ResponseHeader    time.Duration
	TLSHandshake      time.Duration
	HTTP2             bool
	Insecure          bool
	DisableKeepAlives bool
	Headers           http.Header
}

// newTransport builds a transport from settings. Every call returns a
// transport with its own connection pool.
func newTransport(settings Settings) (*http.Transport, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: settings.ResponseHeader,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: settings.ConnKeepAlive,
			Timeout:   settings.Connect,
		}).DialContext,
		MaxIdleConns:          settings.MaxAllIdleConns,
		IdleConnTimeout:       settings.IdleConn,
		TLSHandshakeTimeout:   settings.TLSHandshake,
		MaxIdleConnsPerHost:   settings.MaxHostIdleConns,
		ExpectContinueTimeout: settings.ExpectContinue,
		DisableKeepAlives:     settings.DisableKeepAlives,
	}
	if settings.Insecure {
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	// So clients negotiate HTTP/2 over TLS
	if settings.HTTP2 {
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// headerTransport adds fixed headers to every outgoing request.
type headerTransport struct {
	Base    http.RoundTripper
	Headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.Headers) == 0 {
		return t.Base.RoundTrip(req)
	}

	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				req.Body.Close()
			}
		}()
	}

	req2 := cloneRequest(req)
	for k, vs := range t.Headers {
		req2.Header[k] = append([]string(nil), vs...)
	}

	reqBodyClosed = true
	return t.Base.RoundTrip(req2)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (t *headerTransport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if ci, ok := t.Base.(closeIdler); ok {
		ci.CloseIdleConnections()
	}
}

func cloneRequest(r *http.Request) *http.Request {
	// shallow copy of the struct
	r2 := new(http.Request)
	*r2 = *r
	// deep copy of the Header
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}
