package model

import (
	"fmt"
	"strings"
)

// Strategy describes how a client handle is obtained and released for each
// request of a probe run.
type Strategy string

const (
	// StrategyNew creates a new client with its own transport per request
	// and disposes it right after.
	StrategyNew Strategy = "new"
	// StrategyFactory asks a factory for a client per request. The factory
	// keeps the transport pooled between requests.
	StrategyFactory Strategy = "factory"
	// StrategyShared reuses one client for the whole run.
	StrategyShared Strategy = "shared"
)

// Strategies lists every strategy in the order they are compared. Strategies
// that leave TIME_WAIT sockets behind go last so they do not skew the
// baseline of the others.
var Strategies = []Strategy{StrategyShared, StrategyFactory, StrategyNew}

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "new", "newperrequest", "new-per-request":
		return StrategyNew, nil
	case "factory", "factoryperrequest", "factory-per-request":
		return StrategyFactory, nil
	case "shared", "sharedinstance", "shared-instance":
		return StrategyShared, nil
	}
	return "", fmt.Errorf("unknown client strategy %q (want new, factory or shared)", s)
}

// Description is a human readable label used in reports.
func (s Strategy) Description() string {
	switch s {
	case StrategyNew:
		return "new client per request"
	case StrategyFactory:
		return "factory client per request"
	case StrategyShared:
		return "shared client instance"
	}
	return string(s)
}
