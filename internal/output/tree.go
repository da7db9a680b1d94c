package output

import (
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"

	"github.com/mateo19851/http-client-test/pkg/model"
)

var (
	colorResetTree   = "\033[0m"
	colorMagentaTree = "\033[35m"
	colorGreenTree   = "\033[32m"
	colorDimTree     = "\033[2m"
)

// perStateLimit caps how many records are listed under each state.
const perStateLimit = 10

// PrintSnapshot lists the records of snap grouped by state.
func PrintSnapshot(w io.Writer, snap model.Snapshot, colorEnabled bool) {
	colorReset := ""
	colorMagenta := ""
	colorGreen := ""
	colorDim := ""
	if colorEnabled {
		colorReset = colorResetTree
		colorMagenta = colorMagentaTree
		colorGreen = colorGreenTree
		colorDim = colorDimTree
	}

	fmt.Fprintf(w, "%s%d connections%s %s(%s, %s)%s\n",
		colorGreen, snap.Len(), colorReset,
		colorDim, snap.Backend, snap.CapturedAt.Format("15:04:05.000"), colorReset)

	groups := make(map[model.State][]model.ConnectionRecord)
	for _, r := range snap.Records {
		groups[r.State] = append(groups[r.State], r)
	}
	states := make([]model.State, 0, len(groups))
	for s := range groups {
		states = append(states, s)
	}
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	for i, state := range states {
		last := i == len(states)-1
		connector, indent := "├─ ", "│  "
		if last {
			connector, indent = "└─ ", "   "
		}
		recs := groups[state]
		fmt.Fprintf(w, "%s%s%s%s (%d)\n", colorMagenta, connector, colorReset, state, len(recs))

		count := len(recs)
		for j, r := range recs {
			if j >= perStateLimit {
				fmt.Fprintf(w, "%s%s└─ %s... and %d more\n", indent, colorMagenta, colorReset, count-perStateLimit)
				break
			}
			child := "├─ "
			if j == count-1 || (j == perStateLimit-1 && count <= perStateLimit) {
				child = "└─ "
			}
			owner := ""
			if r.PID != 0 {
				owner = fmt.Sprintf(" %s(pid %d)%s", colorDim, r.PID, colorReset)
			}
			fmt.Fprintf(w, "%s%s%s%s%s -> %s%s\n", indent, colorMagenta, child, colorReset,
				hostPort(r.LocalAddr, r.LocalPort), hostPort(r.RemoteAddr, r.RemotePort), owner)
		}
	}
}

func hostPort(addr string, port int) string {
	if addr == "" {
		addr = "*"
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}
