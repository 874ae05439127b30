package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/campus-chat/internal/storage"
)

func TestStubAlwaysReportsZero(t *testing.T) {
	ctx := context.Background()
	stub := Stub{}

	require.NoError(t, stub.Record(ctx, "user-1"))
	require.NoError(t, stub.Record(ctx, "user-1"))

	count, err := stub.MessageCount(ctx, "user-1", Window)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestStorageStoreCountsWithinWindow(t *testing.T) {
	ctx := context.Background()
	store := NewStorageStore(storage.NewMemoryStorage())

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Record(ctx, "user-1"))
	}

	count, err := store.MessageCount(ctx, "user-1", Window)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = store.MessageCount(ctx, "someone-else", Window)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
