package redis

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgebench/scheduler/internal/config"
)

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), config.RedisConfig{
		URL: fmt.Sprintf("redis://%s", mr.Addr()),
	})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer func() {
		_ = client.Close()
	}()

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestNewClientInvalidURL(t *testing.T) {
	client, err := NewClient(context.Background(), config.RedisConfig{
		URL: "not-a-redis-url",
	})
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to parse redis url")
}

func TestNewClientUnreachable(t *testing.T) {
	// A port nothing listens on.
	client, err := NewClient(context.Background(), config.RedisConfig{
		URL: "redis://127.0.0.1:1",
	})
	assert.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}
