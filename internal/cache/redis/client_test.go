package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func TestPlotKey(t *testing.T) {
	assert.Equal(t, "plot:abc", PlotKey("abc"))
}

func TestClient_Unreachable(t *testing.T) {
	// nothing listens on port 1
	c := NewFromClient(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer c.Close()

	ctx := context.Background()
	assert.Error(t, c.Ping(ctx))

	var out map[string]interface{}
	found, err := c.GetPlot(ctx, "abc", &out)
	assert.Error(t, err)
	assert.False(t, found)

	assert.Error(t, c.SetPlot(ctx, "abc", map[string]int{"a": 1}, time.Minute))

	_, err = NewClient("127.0.0.1", 1, "", 0)
	assert.Error(t, err)
}
