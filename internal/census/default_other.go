//go:build !linux

package census

const defaultBackend = BackendGopsutil
