package probe

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/mateo19851/http-client-test/internal/census"
)

// Endpoint is a validated probe target.
type Endpoint struct {
	URL  *url.URL
	Host string
	Port int
}

// ParseEndpoint accepts absolute http and https URLs only. The port defaults
// to the scheme's well-known port.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}

	var defaultPort int
	switch strings.ToLower(u.Scheme) {
	case "http":
		defaultPort = 80
	case "https":
		defaultPort = 443
	default:
		return Endpoint{}, fmt.Errorf("%w: %q is not an http(s) URL", ErrInvalidEndpoint, raw)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q has no host", ErrInvalidEndpoint, raw)
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return Endpoint{}, fmt.Errorf("%w: bad port %q", ErrInvalidEndpoint, p)
		}
	}

	return Endpoint{URL: u, Host: host, Port: port}, nil
}

func (e Endpoint) String() string {
	return e.URL.String()
}

// Address is host:port, suitable for dialing.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// matchesEndpointPort keeps connections whose remote port is the endpoint's.
func matchesEndpointPort(e Endpoint) census.Filter {
	return census.RemotePort(e.Port)
}
