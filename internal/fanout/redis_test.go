package fanout_test

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/letstalk/internal/fanout"
)

const testRedisAddr = "localhost:6379"

// checkRedisAvailable skips the test when no Redis is listening locally.
func checkRedisAvailable(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", testRedisAddr, 2*time.Second)
	if err != nil {
		t.Skipf("Redis not available at %s: %v", testRedisAddr, err)
	}
	_ = conn.Close()
}

func unreachableClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestRedisBridge_PublishFailsWithoutFallback(t *testing.T) {
	req := require.New(t)
	client := unreachableClient()
	defer client.Close()
	bridge := fanout.NewRedisBridge(client, logs.GetLoggerFromLevel(slog.LevelDebug), fanout.RedisOptions{})

	err := bridge.Publish(context.Background(), fanout.RoomChannel("Demo"), event(t, 1))
	req.ErrorIs(err, fanout.ErrBridgeUnavailable)
}

func TestRedisBridge_PublishDegradesWithFallback(t *testing.T) {
	req := require.New(t)
	client := unreachableClient()
	defer client.Close()

	var degraded atomic.Int32
	bridge := fanout.NewRedisBridge(client, logs.GetLoggerFromLevel(slog.LevelDebug), fanout.RedisOptions{
		LocalFallback: true,
		OnDegraded: func(string, error) {
			degraded.Add(1)
		},
	})

	err := bridge.Publish(context.Background(), fanout.RoomChannel("Demo"), event(t, 1))
	req.NoError(err)
	req.Equal(int32(1), degraded.Load())
}

func TestRedisBridge_SubscribeFailsWhenUnreachable(t *testing.T) {
	client := unreachableClient()
	defer client.Close()
	bridge := fanout.NewRedisBridge(client, logs.GetLoggerFromLevel(slog.LevelDebug), fanout.RedisOptions{})

	_, err := bridge.Subscribe(context.Background(), fanout.RoomChannel("Demo"))
	require.ErrorIs(t, err, fanout.ErrBridgeUnavailable)
}

func TestRedisBridge_ReplicatesBetweenInstances(t *testing.T) {
	checkRedisAvailable(t)
	req := require.New(t)
	ctx := context.Background()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	prefix := "letstalk-test:" + uuid.NewString() + ":"

	clientA := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	clientB := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	defer clientA.Close()
	defer clientB.Close()

	// Given two instances on the same Redis
	a := fanout.NewRedisBridge(clientA, log, fanout.RedisOptions{Prefix: prefix})
	b := fanout.NewRedisBridge(clientB, log, fanout.RedisOptions{Prefix: prefix})
	defer a.Close()
	defer b.Close()

	subA, err := a.Subscribe(ctx, fanout.RoomChannel("Demo"))
	req.NoError(err)
	subB, err := b.Subscribe(ctx, fanout.RoomChannel("Demo"))
	req.NoError(err)

	// When one instance publishes
	for i := 0; i < 20; i++ {
		req.NoError(a.Publish(ctx, fanout.RoomChannel("Demo"), event(t, i)))
	}

	// Then both observe every event in order
	for _, sub := range []fanout.Subscription{subA, subB} {
		for i := 0; i < 20; i++ {
			var got int
			req.NoError(receive(t, sub).Decode(&got))
			req.Equal(i, got)
		}
	}

	req.NoError(subB.Close())
	_, ok := <-subB.Events()
	req.False(ok)
}

func TestRedisBridge_ClosedBridgeRefusesWork(t *testing.T) {
	req := require.New(t)
	client := unreachableClient()
	defer client.Close()
	bridge := fanout.NewRedisBridge(client, logs.GetLoggerFromLevel(slog.LevelDebug), fanout.RedisOptions{LocalFallback: true})

	req.NoError(bridge.Close())
	req.NoError(bridge.Close())

	req.ErrorIs(bridge.Publish(context.Background(), fanout.RoomChannel("Demo"), event(t, 1)), fanout.ErrBridgeClosed)
	_, err := bridge.Subscribe(context.Background(), fanout.RoomChannel("Demo"))
	req.ErrorIs(err, fanout.ErrBridgeClosed)
}
