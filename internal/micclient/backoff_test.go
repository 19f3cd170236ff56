package micclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesToCapAndResets(t *testing.T) {
	b := newBackoff(time.Second, 30*time.Second)
	var got []time.Duration
	for i := 0; i < 7; i++ {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
}

func TestSessionDefaults(t *testing.T) {
	o := SessionOptions{}.withDefaults()
	assert.Equal(t, time.Second, o.MinBackoff)
	assert.Equal(t, 30*time.Second, o.MaxBackoff)

	o = SessionOptions{MinBackoff: time.Minute, MaxBackoff: time.Second}.withDefaults()
	assert.Equal(t, time.Minute, o.MaxBackoff, "the cap never undercuts the first delay")
}
