package census

import (
	"context"
	"fmt"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// Gopsutil enumerates connections through gopsutil, which wraps the native
// facility of each OS (procfs, lsof, GetExtendedTcpTable, sysctl).
type Gopsutil struct {
	// list is swapped in tests.
	list func(ctx context.Context, kind string) ([]psnet.ConnectionStat, error)
}

func (g *Gopsutil) Name() string { return BackendGopsutil }

func (g *Gopsutil) Connections(ctx context.Context) ([]model.ConnectionRecord, error) {
	list := g.list
	if list == nil {
		list = psnet.ConnectionsWithContext
	}

	stats, err := list(ctx, "tcp")
	if err != nil {
		// gopsutil keeps its sentinel in an internal package
		if strings.Contains(err.Error(), "not implemented") {
			return nil, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
		}
		return nil, fmt.Errorf("gopsutil connections: %w", err)
	}

	records := make([]model.ConnectionRecord, 0, len(stats))
	for _, s := range stats {
		records = append(records, fromConnectionStat(s))
	}
	return records, nil
}

func fromConnectionStat(s psnet.ConnectionStat) model.ConnectionRecord {
	proto := "TCP"
	if strings.Contains(s.Laddr.IP, ":") {
		proto = "TCP6"
	}
	return model.ConnectionRecord{
		Protocol:   proto,
		LocalAddr:  s.Laddr.IP,
		LocalPort:  int(s.Laddr.Port),
		RemoteAddr: s.Raddr.IP,
		RemotePort: int(s.Raddr.Port),
		State:      model.ParseState(s.Status),
		PID:        int(s.Pid),
	}
}
