package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/clock"
	"github.com/tsinghua-fib-lab/agentsociety-roadnet/utils/config"
)

func TestClockEpisodes(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 3, Interval: 0.5}, 2)
	assert.Equal(t, int32(10), c.InternalStep)
	assert.Equal(t, 5.0, c.T)
	assert.False(t, c.EpisodeDone())

	c.Step()
	assert.Equal(t, 5.5, c.T)
	c.Step()
	assert.True(t, c.EpisodeDone())
	assert.False(t, c.LastEpisode())

	c.NextEpisode()
	assert.Equal(t, int32(1), c.Episode)
	assert.Equal(t, int32(10), c.InternalStep)
	assert.True(t, c.LastEpisode())
	assert.Equal(t, "E1 00:00:05", c.String())
}
