package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_RejectsZeroPartitionCount(t *testing.T) {
	_, err := Of("any-key", 0)
	require.Error(t, err)
}

func TestOf_Deterministic(t *testing.T) {
	p1, err := Of("user-42", 16)
	require.NoError(t, err)
	p2, err := Of("user-42", 16)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestOf_WithinBounds(t *testing.T) {
	for n := uint32(1); n <= 64; n++ {
		for i := 0; i < 200; i++ {
			key := fmt.Sprintf("key-%d", i)
			p, err := Of(key, n)
			require.NoError(t, err)
			assert.Less(t, p, n)
		}
	}
}

func TestOf_KeyAffinity(t *testing.T) {
	const n = 10
	p, err := Of("abc", n)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := Of("abc", n)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestOf_DistributionIsReasonablyUniform(t *testing.T) {
	const n = 4
	const total = 10000
	counts := make([]int, n)
	for i := 0; i < total; i++ {
		key := fmt.Sprintf("distinct-key-%d", i)
		p, err := Of(key, n)
		require.NoError(t, err)
		counts[p]++
	}
	for _, c := range counts {
		frac := float64(c) / float64(total)
		assert.GreaterOrEqual(t, frac, 0.20)
		assert.LessOrEqual(t, frac, 0.30)
	}
}
