package persistence

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedis_AgainstContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in -short mode")
	}

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	addr, err := c.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	b := NewRedis(client, "it/")

	_, err = b.Load(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.SaveSnapshot(ctx, "2024_01_01_00_00_00", []byte("v1")))
	require.NoError(t, b.Save(ctx, []byte("v1")))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	hist, err := client.Get(ctx, "it/history/status_2024_01_01_00_00_00.cf").Bytes()
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), hist)
}
