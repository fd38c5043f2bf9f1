//go:build !gocv

package vision

import (
	"context"
	"fmt"
)

// GoCV reports that the OpenCV backend is not compiled in. Build with
// -tags gocv to enable it.
func GoCV(ctx context.Context) (Backend, error) {
	_ = ctx
	return nil, fmt.Errorf("%w: gocv build tag is not enabled", ErrBackendUnavailable)
}
