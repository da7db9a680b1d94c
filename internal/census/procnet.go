package census

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mateo19851/http-client-test/pkg/model"
)

// kernel TCP states, include/net/tcp_states.h
var stateMap = map[string]model.State{
	"01": model.StateEstablished,
	"02": model.StateSynSent,
	"03": model.StateSynRecv,
	"04": model.StateFinWait1,
	"05": model.StateFinWait2,
	"06": model.StateTimeWait,
	"07": model.StateClose,
	"08": model.StateCloseWait,
	"09": model.StateLastAck,
	"0A": model.StateListen,
	"0B": model.StateClosing,
}

// ProcNet reads /proc/net/tcp and /proc/net/tcp6.
type ProcNet struct {
	Root          string // defaults to /proc
	AttributePIDs bool
}

func (p *ProcNet) Name() string { return BackendProcNet }

func (p *ProcNet) root() string {
	if p.Root == "" {
		return "/proc"
	}
	return p.Root
}

func (p *ProcNet) Connections(ctx context.Context) ([]model.ConnectionRecord, error) {
	tables := []struct {
		file  string
		proto string
		ipv6  bool
	}{
		{"tcp", "TCP", false},
		{"tcp6", "TCP6", true},
	}

	var (
		records []model.ConnectionRecord
		inodes  []string
		found   int
	)
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(p.root(), "net", t.file)
		f, err := os.Open(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		found++
		recs, ino, err := parseTCPTable(f, t.proto, t.ipv6)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		records = append(records, recs...)
		inodes = append(inodes, ino...)
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: no tcp tables under %s/net", ErrPlatformUnavailable, p.root())
	}

	if p.AttributePIDs {
		owners := p.socketOwners()
		for i := range records {
			records[i].PID = owners[inodes[i]]
		}
	}
	return records, nil
}

// parseTCPTable parses one /proc/net/tcp{,6} table. The returned inode slice
// is parallel to the records.
func parseTCPTable(r io.Reader, proto string, ipv6 bool) ([]model.ConnectionRecord, []string, error) {
	var (
		records []model.ConnectionRecord
		inodes  []string
	)

	scanner := bufio.NewScanner(r)
	scanner.Scan() // skip header

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}

		state, ok := stateMap[strings.ToUpper(fields[3])]
		if !ok {
			state = model.StateUnknown
		}

		localAddr, localPort := parseAddr(fields[1], ipv6)
		remoteAddr, remotePort := parseAddr(fields[2], ipv6)
		records = append(records, model.ConnectionRecord{
			Protocol:   proto,
			LocalAddr:  localAddr,
			LocalPort:  localPort,
			RemoteAddr: remoteAddr,
			RemotePort: remotePort,
			State:      state,
		})
		inodes = append(inodes, fields[9])
	}
	return records, inodes, scanner.Err()
}

// parseAddr decodes the kernel's hex "ADDR:PORT" notation.
func parseAddr(raw string, ipv6 bool) (string, int) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 {
		return "", 0
	}
	port, _ := strconv.ParseInt(parts[1], 16, 32)

	b, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", int(port)
	}

	if ipv6 {
		if len(b) != 16 {
			return "::", int(port)
		}
		// stored as four little-endian 32-bit words
		ip := make(net.IP, 16)
		for i := 0; i < 4; i++ {
			ip[i*4+0] = b[i*4+3]
			ip[i*4+1] = b[i*4+2]
			ip[i*4+2] = b[i*4+1]
			ip[i*4+3] = b[i*4+0]
		}
		return ip.String(), int(port)
	}

	if len(b) < 4 {
		return "", int(port)
	}
	return net.IPv4(b[3], b[2], b[1], b[0]).String(), int(port)
}

// socketOwners maps socket inodes to the PID holding them, scanning every
// /proc/<pid>/fd directory it is allowed to read.
func (p *ProcNet) socketOwners() map[string]int {
	owners := make(map[string]int)

	procs, err := os.ReadDir(p.root())
	if err != nil {
		return owners
	}

	for _, e := range procs {
		if !e.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}

		fdPath := filepath.Join(p.root(), e.Name(), "fd")
		fds, err := os.ReadDir(fdPath)
		if err != nil {
			continue
		}

		for _, fd := range fds {
			link, err := os.Readlink(filepath.Join(fdPath, fd.Name()))
			if err != nil {
				continue
			}
			if strings.HasPrefix(link, "socket:[") {
				inode := strings.TrimSuffix(strings.TrimPrefix(link, "socket:["), "]")
				owners[inode] = pid
			}
		}
	}
	return owners
}
