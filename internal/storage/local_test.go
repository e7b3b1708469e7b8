package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"campus-lostfound/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLocalImageStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "uploads")
	store, err := NewLocalImageStore(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, "card.png", []byte("payload")))

	rc, err := store.Open(ctx, "card.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	// No temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, store.Delete(ctx, "card.png"))
	require.NoError(t, store.Delete(ctx, "card.png"))

	_, err = store.Open(ctx, "card.png")
	assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
}

func TestLocalImageStoreRejectsEscapingRefs(t *testing.T) {
	store, err := NewLocalImageStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, ref := range []string{"", "../secret.png", "a/b.png", ".hidden"} {
		err := store.Save(context.Background(), ref, []byte("x"))
		assert.True(t, utils.IsErrorCode(err, utils.ErrInvalidInput), ref)
	}
}
