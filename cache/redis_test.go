package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, nil)
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

type payload struct {
	Worker string `json:"worker"`
	Pay    string `json:"pay"`
}

func TestClient_SetGetJSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.SetJSON(ctx, "dailypay:w1:2025-03-10", payload{Worker: "w1", Pay: "210.00"}))

	var got payload
	hit, err := client.GetJSON(ctx, "dailypay:w1:2025-03-10", &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "210.00", got.Pay)

	// TTL is applied
	assert.Equal(t, time.Minute, mr.TTL("dailypay:w1:2025-03-10"))
}

func TestClient_GetJSONMiss(t *testing.T) {
	client, _ := setupTestRedis(t)

	var got payload
	hit, err := client.GetJSON(context.Background(), "missing", &got)

	require.NoError(t, err)
	assert.False(t, hit)
}

func TestClient_GetJSONExpired(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	require.NoError(t, client.SetJSON(ctx, "k", payload{Worker: "w1"}))

	mr.FastForward(2 * time.Minute)

	var got payload
	hit, err := client.GetJSON(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestClient_DeletePattern(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	for _, k := range []string{"dailypay:w1:a", "dailypay:w1:b", "dailypay:w10:a", "dailypay:w2:a"} {
		require.NoError(t, client.SetJSON(ctx, k, payload{}))
	}

	require.NoError(t, client.DeletePattern(ctx, "dailypay:w1:*"))

	assert.False(t, mr.Exists("dailypay:w1:a"))
	assert.False(t, mr.Exists("dailypay:w1:b"))
	assert.True(t, mr.Exists("dailypay:w10:a"))
	assert.True(t, mr.Exists("dailypay:w2:a"))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient("not-a-url", time.Minute, nil)
	assert.Error(t, err)
}
