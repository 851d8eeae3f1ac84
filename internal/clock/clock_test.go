package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)

	f.Sleep(time.Second)
	f.Sleep(2 * time.Second)
	f.Advance(time.Minute)

	assert.Equal(t, start.Add(63*time.Second), f.Now())
	assert.Equal(t, 2, f.Sleeps())
}

func TestRealMonotonic(t *testing.T) {
	var c Clock = Real{}
	a := c.Now()
	c.Sleep(time.Millisecond)
	assert.True(t, c.Now().After(a))
}
