//go:build integration

package tabletctx

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startDynamoDBLocal starts a DynamoDB Local container and returns its endpoint URL.
// The container is terminated when the test ends.
func startDynamoDBLocal(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "amazon/dynamodb-local:latest",
		ExposedPorts: []string{"8000/tcp"},
		Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
		WaitingFor:   wait.ForListeningPort("8000/tcp").WithStartupTimeout(time.Minute),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start dynamodb-local container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		t.Fatalf("get mapped port: %v", err)
	}
	return fmt.Sprintf("http://%s:%s", host, port.Port())
}

func TestIntegration_DynamoDBLocal(t *testing.T) {
	ctx := context.Background()
	endpoint := startDynamoDBLocal(t)

	cfg := DialConfig{
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     "local",
		SecretAccessKey: "local",
	}
	c, err := Open(ctx, cfg, testingTable(t, "testing", table.ModeUpsert, true),
		WithWaiterDelay(100*time.Millisecond, time.Second),
		WithWaitTimeout(30*time.Second),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	exists, err := c.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	for i := int32(0); i < 10; i++ {
		ok, err := c.WriteRow(ctx, createRow(i))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	rows, err := c.ReadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 10)

	got, err := c.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, c.Descriptor().Columns(), got.Columns())

	t.Run("insert and update conditions", func(t *testing.T) {
		inserts, err := Open(ctx, cfg, testingTable(t, "testing", table.ModeInsert, false))
		require.NoError(t, err)
		ok, err := inserts.WriteRow(ctx, createRow(3))
		require.NoError(t, err)
		assert.False(t, ok)

		updates, err := Open(ctx, cfg, testingTable(t, "testing", table.ModeUpdate, false))
		require.NoError(t, err)
		ok, err = updates.WriteRow(ctx, createRow(42))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	deleted, err := c.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = c.Delete(ctx)
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestIntegration_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := Open(ctx, DialConfig{
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:1",
		AccessKeyID:     "local",
		SecretAccessKey: "local",
	}, testingTable(t, "testing", table.ModeUpsert, true))
	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
}
