// Package vision provides the pixel backends the measurement pipeline runs
// on, and an initialisation handle that signals when a backend is ready.
package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Backend names accepted by FactoryFor.
const (
	NameNative = "native"
	NameGoCV   = "gocv"
)

var (
	// ErrNotReady is returned by Handle.Backend before initialisation ends.
	ErrNotReady = errors.New("vision backend not ready")
	// ErrBackendUnavailable is returned when a backend is not compiled in
	// or cannot start.
	ErrBackendUnavailable = errors.New("vision backend unavailable")
)

// Backend implements every image operation the pipeline needs.
type Backend interface {
	segment.Ops
	contour.Backend
	calibration.LineSource
	Name() string
	Close() error
}

// Factory initialises a backend. It may block.
type Factory func(ctx context.Context) (Backend, error)

// FactoryFor returns the factory registered under name.
func FactoryFor(name string) (Factory, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", NameNative:
		return Native, nil
	case NameGoCV:
		return GoCV, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrBackendUnavailable, name)
	}
}

// Handle tracks asynchronous backend initialisation.
type Handle struct {
	ready   chan struct{}
	backend Backend
	err     error
}

// Open starts f in the background and returns immediately.
func Open(ctx context.Context, f Factory) *Handle {
	h := &Handle{ready: make(chan struct{})}
	go func() {
		defer close(h.ready)
		h.backend, h.err = f(ctx)
		if h.err == nil && h.backend == nil {
			h.err = fmt.Errorf("%w: factory returned no backend", ErrBackendUnavailable)
		}
	}()
	return h
}

// Ready is closed once initialisation has finished, successfully or not.
func (h *Handle) Ready() <-chan struct{} { return h.ready }

// Err returns the initialisation error, or nil while still initialising.
func (h *Handle) Err() error {
	select {
	case <-h.ready:
		return h.err
	default:
		return nil
	}
}

// Backend returns the backend, or ErrNotReady while initialising.
func (h *Handle) Backend() (Backend, error) {
	select {
	case <-h.ready:
		if h.err != nil {
			return nil, h.err
		}
		return h.backend, nil
	default:
		return nil, ErrNotReady
	}
}

// Wait blocks until the backend is ready or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Backend, error) {
	select {
	case <-h.ready:
		return h.Backend()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close releases the backend once it is ready. Closing a handle that is
// still initialising waits for it.
func (h *Handle) Close() error {
	<-h.ready
	if h.backend == nil {
		return nil
	}
	return h.backend.Close()
}
