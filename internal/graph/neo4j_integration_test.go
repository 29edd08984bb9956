package graph

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupNeo4j(t *testing.T) *Neo4jGraph {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "neo4j:5-community",
			ExposedPorts: []string{"7687/tcp"},
			Env:          map[string]string{"NEO4J_AUTH": "none"},
			WaitingFor:   wait.ForLog("Started.").WithStartupTimeout(120 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "7687/tcp")
	require.NoError(t, err)

	driver, err := neo4j.NewDriverWithContext(fmt.Sprintf("bolt://%s:%s", host, port.Port()), neo4j.NoAuth())
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close(context.Background()) })

	g := NewNeo4jGraph(driver)
	require.Eventually(t, func() bool { return g.Ping(ctx) == nil }, 30*time.Second, 500*time.Millisecond)
	require.NoError(t, g.EnsureSchema(ctx))
	return g
}

func TestNeo4jGraph_FollowedAuthorIDs(t *testing.T) {
	g := setupNeo4j(t)
	ctx := context.Background()

	ids, err := g.FollowedAuthorIDs(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, ids, "unknown viewer follows nobody")

	require.NoError(t, g.Follow(ctx, 100, 1))
	require.NoError(t, g.Follow(ctx, 100, 2))
	require.NoError(t, g.Follow(ctx, 100, 2), "follow is idempotent")
	require.NoError(t, g.Follow(ctx, 200, 3))

	ids, err = g.FollowedAuthorIDs(ctx, 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids)

	ids, err = g.FollowedAuthorIDs(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, ids)
}
