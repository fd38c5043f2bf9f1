package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{name: "zero size", input: 0, expected: 1024},
		{name: "small size gets minimum", input: 1, expected: 1024},
		{name: "exactly 1024", input: 1024, expected: 1024},
		{name: "just over 1024", input: 1025, expected: 2048},
		{name: "large size", input: 10000, expected: 10240},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, sizeClass(tt.input))
		})
	}
}

func TestGetBool_ZeroedAfterReuse(t *testing.T) {
	buf := GetBool(5000)
	require.Len(t, buf, 5000)
	for i := range buf {
		buf[i] = true
	}
	PutBool(buf)

	again := GetBool(5000)
	defer PutBool(again)
	for i, v := range again {
		if v {
			t.Fatalf("index %d not cleared", i)
		}
	}
}

func TestGetInt32_Length(t *testing.T) {
	buf := GetInt32(321)
	defer PutInt32(buf)
	assert.Len(t, buf, 321)
	assert.GreaterOrEqual(t, cap(buf), 1024)
}

func TestOutstanding_BalancesGetAndPut(t *testing.T) {
	base := Outstanding()

	a := GetBool(10)
	b := GetInt32(10)
	assert.Equal(t, base+2, Outstanding())

	PutBool(a)
	PutInt32(b)
	PutBool(nil)
	assert.Equal(t, base, Outstanding())
}

func TestPool_ConcurrentUse(t *testing.T) {
	base := Outstanding()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				m := GetBool(640 * 480)
				m[0] = true
				PutBool(m)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, base, Outstanding())
}
