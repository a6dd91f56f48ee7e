package redis_client

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	o := Options("redis.local", 6380)
	assert.Equal(t, "redis.local:6380", o.Addr)
	assert.Positive(t, o.PoolSize)
	assert.LessOrEqual(t, o.PoolSize, 512)
}

func TestPing(t *testing.T) {
	rc, mock := redismock.NewClientMock()

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, Ping(context.Background(), rc))

	down := errors.New("dial tcp: connection refused")
	mock.ExpectPing().SetErr(down)
	err := Ping(context.Background(), rc)
	require.ErrorIs(t, err, down)

	require.NoError(t, mock.ExpectationsWereMet())
}
