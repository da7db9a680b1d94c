package census

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// Netstat parses the output of the platform's netstat command. It needs no
// privileges and no procfs, but only the Windows variant reports PIDs.
type Netstat struct {
	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (n *Netstat) Name() string { return BackendNetstat }

func (n *Netstat) Connections(ctx context.Context) ([]model.ConnectionRecord, error) {
	run := n.run
	if run == nil {
		run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		}
	}

	name, args := netstatCommand(runtime.GOOS)
	out, err := run(ctx, name, args...)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return parseNetstat(out), nil
}

func netstatCommand(goos string) (string, []string) {
	switch goos {
	case "windows":
		return "netstat", []string{"-ano"}
	case "linux":
		return "netstat", []string{"-tan"}
	default:
		return "netstat", []string{"-an", "-p", "tcp"}
	}
}

// parseNetstat accepts both layouts:
//
//	Proto Local Foreign State PID                    (windows)
//	Proto Recv-Q Send-Q Local Foreign State          (linux, darwin, freebsd)
func parseNetstat(out []byte) []model.ConnectionRecord {
	var records []model.ConnectionRecord

	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		proto := strings.ToLower(fields[0])
		if !strings.HasPrefix(proto, "tcp") {
			continue
		}

		var local, foreign, state string
		pid := 0
		if len(fields) >= 6 && isNumber(fields[1]) && isNumber(fields[2]) {
			local, foreign, state = fields[3], fields[4], fields[5]
		} else {
			local, foreign, state = fields[1], fields[2], fields[3]
			if len(fields) >= 5 {
				pid, _ = strconv.Atoi(fields[4])
			}
		}

		laddr, lport := parseNetstatAddr(local)
		raddr, rport := parseNetstatAddr(foreign)
		if lport == 0 && laddr == "" {
			continue
		}

		protocol := "TCP"
		if strings.HasSuffix(proto, "6") || strings.Contains(laddr, ":") {
			protocol = "TCP6"
		}
		records = append(records, model.ConnectionRecord{
			Protocol:   protocol,
			LocalAddr:  laddr,
			LocalPort:  lport,
			RemoteAddr: raddr,
			RemotePort: rport,
			State:      model.ParseState(state),
			PID:        pid,
		})
	}
	return records
}

// parseNetstatAddr parses addresses like "*.8080", "127.0.0.1.8080",
// "127.0.0.1:8080", "[::1]:8080" and "::1.8080".
func parseNetstatAddr(addr string) (string, int) {
	if strings.HasPrefix(addr, "[") {
		end := strings.LastIndex(addr, "]")
		if end == -1 {
			return "", 0
		}
		ip := addr[1:end]
		rest := addr[end+1:]
		if len(rest) > 1 && (rest[0] == ':' || rest[0] == '.') {
			if port, err := strconv.Atoi(rest[1:]); err == nil {
				return ip, port
			}
		}
		return ip, 0
	}

	if strings.HasPrefix(addr, "*") {
		if len(addr) > 2 && (addr[1] == ':' || addr[1] == '.') {
			if port, err := strconv.Atoi(addr[2:]); err == nil {
				return "0.0.0.0", port
			}
		}
		return "", 0
	}

	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		if port, err := strconv.Atoi(addr[idx+1:]); err == nil {
			return addr[:idx], port
		}
	}

	// darwin and freebsd separate the port with a dot
	if idx := strings.LastIndex(addr, "."); idx != -1 {
		if port, err := strconv.Atoi(addr[idx+1:]); err == nil {
			return addr[:idx], port
		}
	}
	return "", 0
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
