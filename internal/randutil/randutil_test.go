package randutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeededSourceIsReproducible(t *testing.T) {
	a, b := New(42), New(42)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.IntN(1000), b.IntN(1000))
	}
}

func TestSampleDistinct(t *testing.T) {
	src := New(7)
	for n := 1; n <= 8; n++ {
		for k := 0; k <= n; k++ {
			got := Sample(src, n, k)
			require.Len(t, got, k)
			seen := map[int]bool{}
			for _, v := range got {
				assert.GreaterOrEqual(t, v, 0)
				assert.Less(t, v, n)
				assert.False(t, seen[v], "duplicate index %d", v)
				seen[v] = true
			}
		}
	}
}

func TestSampleTooLargePanics(t *testing.T) {
	assert.Panics(t, func() { Sample(New(1), 2, 3) })
}
