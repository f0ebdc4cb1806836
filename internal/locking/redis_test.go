package locking

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestConnectFailsFast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, "127.0.0.1:1", quietLogger())
	assert.Error(t, err)
}

// Runs only when REDIS_TEST_ADDRESS points at a disposable Redis.
func TestRedisLockerSerializesSameKey(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	ctx := context.Background()
	l, err := Connect(ctx, addr, quietLogger())
	require.NoError(t, err)

	key := ConsignmentKey(uint(time.Now().UnixNano() % 1_000_000))
	release, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, key)
	assert.Error(t, err, "second holder must wait")

	release()
	release2, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	release2()
}

func TestRedisLockerKeepsLeaseWhileHeld(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDRESS not set")
	}
	ctx := context.Background()
	l, err := Connect(ctx, addr, quietLogger())
	require.NoError(t, err)
	l.ttl = 300 * time.Millisecond

	key := ConsignmentKey(uint(time.Now().UnixNano()%1_000_000) + 1_000_000)
	release, err := l.Acquire(ctx, key)
	require.NoError(t, err)

	// Held for several TTLs, like a slow database transaction.
	time.Sleep(time.Second)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(short, key)
	assert.Error(t, err, "lease must still be held after its TTL")

	release()
	release()
	again, err := l.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}
