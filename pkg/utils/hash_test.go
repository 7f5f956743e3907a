package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashString(""))
	assert.Len(t, HashString("etna"), 64)
}

func TestCacheKey(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(CacheKey("Event", "etna"), CacheKey("Event", "etna"))
	assert.NotEqual(CacheKey("Event", "etna"), CacheKey("Eruption", "etna"))
	assert.NotEqual(CacheKey("ab", "c"), CacheKey("a", "bc"))
}
