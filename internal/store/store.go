// Package store is the typed domain facade over the storage gateway:
// sessions, the raw message journal, the formatted chat log and the
// auxiliary config / draw-history / web-cache tables. Every operation is a
// single statement routed through the gateway worker, so callers inherit
// its total ordering, and gateway errors are surfaced unchanged.
package store

import (
	"errors"

	"chatrelay/internal/gateway"
)

type Store struct {
	gw *gateway.Gateway
}

func New(gw *gateway.Gateway) (*Store, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	return &Store{gw: gw}, nil
}
