package atomic_clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApi(t *testing.T) {
	t.Parallel()
	c := Now()
	tim := time.Now()
	const delta = 100 * time.Millisecond

	assert.InDelta(t, tim.UnixNano(), c.UnixNano(), float64(delta))
	assert.InDelta(t, tim.Unix(), c.Unix(), 1)

	c.SetTime(tim)
	assert.Equal(t, tim.UnixNano(), c.UnixNano())
	assert.InDelta(t, tim.UnixNano(), c.Time().UnixNano(), float64(delta))

	c.SetNow()
	assert.True(t, Since(c) < delta)
}

func TestReached(t *testing.T) {
	t.Parallel()
	var c Clock
	assert.True(t, c.IsZero())
	assert.True(t, c.Reached(1))

	c.Set(100)
	assert.False(t, c.Reached(99))
	assert.True(t, c.Reached(100))
	assert.True(t, c.Reached(101))

	c.SetIfZero(5)
	assert.Equal(t, int64(100), c.UnixNano())
	c.Reset()
	assert.True(t, c.IsZero())
}
