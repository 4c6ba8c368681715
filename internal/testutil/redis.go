// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// testRedisDB keeps test data away from a developer's working database.
const testRedisDB = 15

// TestRedisAddr returns the Redis address tests should use
func TestRedisAddr() string {
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// SetupTestRedis connects to the test Redis database and flushes it.
// The test is skipped when Redis is unreachable unless TEST_REQUIRE_REDIS is set.
func SetupTestRedis(t testing.TB) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: TestRedisAddr(),
		DB:   testRedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if os.Getenv("TEST_REQUIRE_REDIS") != "" {
			t.Fatalf("Redis not available for testing at %s: %v", TestRedisAddr(), err)
		}
		t.Skipf("Redis not available for testing at %s: %v", TestRedisAddr(), err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// RedisDB is the database index used by SetupTestRedis
func RedisDB() int {
	return testRedisDB
}
