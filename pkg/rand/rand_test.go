package rand

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitter(t *testing.T) {
	r := NewRand(1)
	require.Equal(t, time.Duration(0), r.Jitter(0))
	require.Equal(t, time.Duration(0), r.Jitter(-time.Second))
	for i := 0; i < 1000; i++ {
		j := r.Jitter(time.Millisecond)
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.LessOrEqual(t, j, time.Millisecond)
	}
}
