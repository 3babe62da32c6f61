package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)
	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{3, 4, 5}, got, "only the newest values survive")

	stats := rc.Stats()
	assert.Equal(t, uint64(5), stats.Written)
	assert.Equal(t, uint64(2), stats.Overwritten)
}

func TestTrySend(t *testing.T) {
	rc := New[string](1)
	require.True(t, rc.TrySend("a"))
	require.False(t, rc.TrySend("b"), "full buffer rejects without blocking")

	assert.Equal(t, "a", <-rc.C())
	assert.True(t, rc.TrySend("c"))
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
