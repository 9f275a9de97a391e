//go:build integration

package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	client, err := NewRedisClient(ctx, startRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	c := NewRedis(client)

	_, ok := c.Get(ctx, "discounts:candidates:missing")
	assert.False(t, ok)

	c.Set(ctx, "discounts:candidates:k", sampleDiscounts(), time.Minute)
	got, ok := c.Get(ctx, "discounts:candidates:k")
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, "bogo", got[1].Effect.Kind())

	ttl, err := client.TTL(ctx, "discounts:candidates:k").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, client.Set(ctx, "discounts:candidates:bad", "not json", time.Minute).Err())
	_, ok = c.Get(ctx, "discounts:candidates:bad")
	assert.False(t, ok, "corrupt entries are misses")
}
