package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoImage = "mongo:6"

// StartMongoDB runs a throwaway mongodb container for the test and returns a connected client.
// The test is skipped under -short or when no container runtime is reachable.
func StartMongoDB(ctx context.Context, t *testing.T) *mongo.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping mongodb integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	container, err := mongodb.Run(ctx, mongoImage)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	return client
}
