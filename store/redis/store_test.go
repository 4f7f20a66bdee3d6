//go:build integration

package redis_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shivramiyer22/rideshare-sub001/pipeline"
	redisstore "github.com/shivramiyer22/rideshare-sub001/store/redis"
	"github.com/shivramiyer22/rideshare-sub001/store/storetest"
)

// setupClient starts a Redis container and returns a connected client.
func setupClient(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
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
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestConformance(t *testing.T) {
	client := setupClient(t)

	storetest.Run(t, func(t *testing.T) pipeline.Store {
		t.Helper()
		if err := client.FlushDB(context.Background()).Err(); err != nil {
			t.Fatalf("flushdb: %v", err)
		}
		return redisstore.New(client)
	})
}

func TestCreateRunSetsLatestPointer(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()
	s := redisstore.New(client)

	newer := storetest.NewRun(0)
	older := storetest.NewRun(-time.Minute)
	for _, r := range []*pipeline.Run{newer, older} {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	got, err := client.Get(ctx, "pricing:latest_run").Result()
	if err != nil {
		t.Fatalf("get latest pointer: %v", err)
	}
	if got != newer.ID.String() {
		t.Errorf("latest pointer = %s, want %s", got, newer.ID)
	}

	pr := storetest.SignalsResult()
	for i := 0; i < 3; i++ {
		if err := s.UpdatePhase(ctx, newer.ID, pr); err != nil {
			t.Fatalf("UpdatePhase: %v", err)
		}
	}
	n, err := client.LLen(ctx, "pricing:run_phase_order:"+newer.ID.String()).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if n != 1 {
		t.Errorf("phase order entries = %d, want 1", n)
	}
}
