// Package redis connects to Redis for integration tests.
//
// Tests using it are skipped unless KNITFLEET_TEST_REDIS_ADDR is set.
package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

const EnvAddr = "KNITFLEET_TEST_REDIS_ADDR"

// Connect returns a client closed on cleanup.
func Connect(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv(EnvAddr)
	if addr == "" {
		t.Skipf("set %s to run tests with Redis", EnvAddr)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatal(err)
	}
	return client
}
