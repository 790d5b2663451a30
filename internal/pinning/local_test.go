package pinning

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreIsContentAddressed(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	first, err := store.PinFile(ctx, strings.NewReader("layer bytes"), "a")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.IpfsHash, cidPrefix))
	assert.Equal(t, int64(len("layer bytes")), first.PinSize)
	assert.False(t, first.IsDuplicate)

	again, err := store.PinFile(ctx, strings.NewReader("layer bytes"), "b")
	require.NoError(t, err)
	assert.Equal(t, first.IpfsHash, again.IpfsHash)
	assert.True(t, again.IsDuplicate)

	other, err := store.PinFile(ctx, strings.NewReader("other bytes"), "c")
	require.NoError(t, err)
	assert.NotEqual(t, first.IpfsHash, other.IpfsHash)

	f, err := store.Open(first.IpfsHash)
	require.NoError(t, err)
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "layer bytes", string(b))

	entries, err := os.ReadDir(store.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".pin-"), "temp file left behind: %s", e.Name())
	}
}

func TestLocalStoreOpenRejectsTraversal(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open("../etc/passwd")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = store.Open("b3deadbeef")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLocalStoreHonoursCancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.PinFile(ctx, strings.NewReader("x"), "n")
	assert.ErrorIs(t, err, context.Canceled)
}
