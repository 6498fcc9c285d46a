package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_DropsOldest(t *testing.T) {
	rc := New[int](3)
	for i := 0; i < 10; i++ {
		rc.Send(i)
	}

	assert.Equal(t, 3, rc.Len())
	assert.Equal(t, int64(10), rc.Written())
	assert.Equal(t, int64(7), rc.Dropped())

	var got []int
	for {
		v, ok := rc.TryReceive()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{7, 8, 9}, got)
}

func TestRingChannel_SendReportsDrop(t *testing.T) {
	rc := New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))

	v, ok := rc.TryReceive()
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestRingChannel_CloseEndsRange(t *testing.T) {
	rc := New[int](4)
	rc.Send(1)
	rc.Send(2)
	rc.Close()

	var got []int
	for v := range rc.C() {
		got = append(got, v)
	}
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 4, rc.Cap())
}

func TestRingChannel_ConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](2)
	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(p*100 + i)
			}
		}(p)
	}
	wg.Wait()

	assert.Equal(t, int64(800), rc.Written())
	assert.LessOrEqual(t, rc.Len(), 2)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
