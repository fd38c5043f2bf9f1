// Package mempool provides size-classed buffer pools for the per-scan masks
// and label images so repeated scans do not grow the heap.
package mempool

import (
	"sync"
	"sync/atomic"
)

var (
	boolPools  sync.Map // key: size class (int), value: *sync.Pool
	int32Pools sync.Map // key: size class (int), value: *sync.Pool

	// outstanding counts buffers handed out and not yet returned.
	outstanding atomic.Int64
)

// sizeClass rounds n up to the next multiple of 1024 to reduce churn.
func sizeClass(n int) int {
	if n <= 1024 {
		return 1024
	}
	const step = 1024
	r := (n + step - 1) / step
	return r * step
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	p, ok := pAny.(*sync.Pool)
	if !ok {
		return &sync.Pool{New: func() any { return make([]T, cls) }}
	}
	return p
}

func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	buf, ok := poolFor[T](pools, cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	buf = buf[:n]
	// Pooled buffers are reused, callers expect zeroed contents.
	clear(buf)
	outstanding.Add(1)
	return buf
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	outstanding.Add(-1)
	cls := sizeClass(cap(buf))
	poolFor[T](pools, cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetBool retrieves a zeroed []bool buffer of length n.
// The caller must return it via PutBool when done.
func GetBool(n int) []bool { return get[bool](&boolPools, n) }

// PutBool returns a buffer to the pool. It is safe to pass a nil slice.
func PutBool(buf []bool) { put(&boolPools, buf) }

// GetInt32 retrieves a zeroed []int32 buffer of length n.
// The caller must return it via PutInt32 when done.
func GetInt32(n int) []int32 { return get[int32](&int32Pools, n) }

// PutInt32 returns a buffer to the pool. It is safe to pass a nil slice.
func PutInt32(buf []int32) { put(&int32Pools, buf) }

// Outstanding reports how many pooled buffers are currently checked out.
func Outstanding() int64 { return outstanding.Load() }
