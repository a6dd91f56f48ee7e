package redis_functions

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraries(t *testing.T) {
	libs, err := Libraries()
	require.NoError(t, err)
	require.Contains(t, libs, "auction_events.lua")

	code := libs["auction_events.lua"]
	assert.Contains(t, code, "#!lua name=auction_events")
	assert.Contains(t, code, "redis.register_function('auction_event'")

	require.Contains(t, libs, "round_lock.lua")
	code = libs["round_lock.lua"]
	assert.Contains(t, code, "#!lua name=round_lock")
	assert.Contains(t, code, "redis.register_function('round_unlock'")
}

func TestLoadAll(t *testing.T) {
	libs, err := Libraries()
	require.NoError(t, err)
	code := libs["auction_events.lua"]

	t.Run("ok", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectFunctionLoadReplace(code).SetVal("auction_events")
		mock.ExpectFunctionLoadReplace(libs["round_lock.lua"]).SetVal("round_lock")
		require.NoError(t, LoadAll(context.Background(), rdb))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("error", func(t *testing.T) {
		rdb, mock := redismock.NewClientMock()
		mock.ExpectFunctionLoadReplace(code).SetErr(errors.New("ERR Error compiling function"))
		err := LoadAll(context.Background(), rdb)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "auction_events.lua")
	})
}
