package redis

import (
	"context"
	"testing"
	"time"

	"dds-registration/internal/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis creates a Redis client backed by miniredis
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to create miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func exerciseLock(t *testing.T, client *redis.Client) {
	ctx := context.Background()
	first := NewChargeLock(client, time.Minute, logger.NewNopLogger())
	second := NewChargeLock(client, time.Minute, logger.NewNopLogger())

	ok, err := first.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok, "first caller gets the lock")

	ok, err = second.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok, "second caller is refused while the lock is held")

	// releasing a lock we never held leaves the owner's lock alone
	require.NoError(t, second.Release(ctx, "42"))
	ok, err = second.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, "42"))
	ok, err = second.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok, "lock is free after release")
}

func TestChargeLock(t *testing.T) {
	client, _ := setupTestRedis(t)
	exerciseLock(t, client)
}

func TestChargeLockExpires(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()
	lock := NewChargeLock(client, 5*time.Second, logger.NewNopLogger())

	ok, err := lock.Acquire(ctx, "7")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	other := NewChargeLock(client, 5*time.Second, logger.NewNopLogger())
	ok, err = other.Acquire(ctx, "7")
	require.NoError(t, err)
	assert.True(t, ok, "lock is free once the TTL passed")
}

// TestChargeLockIntegration runs the same checks against a real Redis container
func TestChargeLockIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	host, err := redisContainer.Host(ctx)
	require.NoError(t, err)
	port, err := redisContainer.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	defer client.Close()

	exerciseLock(t, client)
}

func TestConnect(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client, err := Connect(mr.Addr(), logger.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	_, err = Connect(mr.Addr(), logger.NewNopLogger())
	assert.Error(t, err)
}
