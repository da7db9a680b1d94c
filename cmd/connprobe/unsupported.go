//go:build !linux && !darwin && !freebsd && !windows

package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Fprintln(
		os.Stderr,
		"connprobe is only supported on Linux, macOS, FreeBSD and Windows.\n\nIf you are seeing this message, this platform exposes no TCP connection table connprobe can read.",
	)
	os.Exit(1)
}
