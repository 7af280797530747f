package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c, err := NewCache(100, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	c.Set("wf-1", "topology")
	c.Wait()

	got, ok := c.Get("wf-1")
	require.True(t, ok)
	assert.Equal(t, "topology", got)

	c.Del("wf-1")
	_, ok = c.Get("wf-1")
	assert.False(t, ok)
}

func TestNewCacheRejectsZeroSize(t *testing.T) {
	_, err := NewCache(0, time.Minute)
	assert.Error(t, err)
}
