//go:build integration

package mongo_test

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/grove"

	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	"github.com/shivramiyer22/rideshare-sub001/store/mongo"
	"github.com/shivramiyer22/rideshare-sub001/store/storetest"
)

// startMongo starts a single MongoDB container shared by the suite and
// returns its connection URI.
func startMongo(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor: wait.ForLog("Waiting for connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf("mongodb://%s:%s", host, port.Port())
}

func TestConformance(t *testing.T) {
	uri := startMongo(t)
	n := 0

	storetest.Run(t, func(t *testing.T) pipeline.Store {
		t.Helper()
		ctx := context.Background()

		// Each case gets its own database so history queries start empty.
		n++
		db, err := grove.Open(ctx, "mongo", fmt.Sprintf("%s/pricing_test_%d", uri, n))
		if err != nil {
			t.Fatalf("open grove db: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })

		s := mongo.New(db, mongo.WithLogger(slog.Default()))
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		return s
	})
}
