package census

import (
	"net"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// Filter selects connection records. Filters must be pure.
type Filter func(model.ConnectionRecord) bool

// RemotePort keeps connections whose remote end uses port.
func RemotePort(port int) Filter {
	return func(r model.ConnectionRecord) bool {
		return r.RemotePort == port
	}
}

// RemoteHost keeps connections whose remote address equals one of addrs.
// IPv4-mapped IPv6 addresses match their IPv4 form.
func RemoteHost(addrs ...net.IP) Filter {
	return func(r model.ConnectionRecord) bool {
		ip := net.ParseIP(r.RemoteAddr)
		if ip == nil {
			return false
		}
		for _, a := range addrs {
			if a.Equal(ip) {
				return true
			}
		}
		return false
	}
}

func InStates(states ...model.State) Filter {
	set := stateSet(states)
	return func(r model.ConnectionRecord) bool {
		return set[r.State]
	}
}

func ExcludeStates(states ...model.State) Filter {
	set := stateSet(states)
	return func(r model.ConnectionRecord) bool {
		return !set[r.State]
	}
}

// OwnedBy keeps connections attributed to pid. Records without attribution
// never match.
func OwnedBy(pid int) Filter {
	return func(r model.ConnectionRecord) bool {
		return r.PID != 0 && r.PID == pid
	}
}

// All combines filters; nil entries are skipped.
func All(filters ...Filter) Filter {
	return func(r model.ConnectionRecord) bool {
		for _, f := range filters {
			if f != nil && !f(r) {
				return false
			}
		}
		return true
	}
}

func stateSet(states []model.State) map[model.State]bool {
	set := make(map[model.State]bool, len(states))
	for _, s := range states {
		set[s] = true
	}
	return set
}
