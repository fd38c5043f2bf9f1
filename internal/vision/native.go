package vision

import (
	"context"

	"github.com/MeKo-Tech/fabricarea/internal/calibration"
	"github.com/MeKo-Tech/fabricarea/internal/contour"
	"github.com/MeKo-Tech/fabricarea/internal/segment"
)

// Native opens the pure Go backend. It is ready immediately.
func Native(ctx context.Context) (Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nativeBackend{}, nil
}

type nativeBackend struct {
	segment.NativeOps
	contour.NativeBackend
	calibration.NativeLines
}

var _ Backend = nativeBackend{}

func (nativeBackend) Name() string { return NameNative }

func (nativeBackend) Close() error { return nil }
