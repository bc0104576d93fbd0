package signal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentStoreInit(t *testing.T) {
	base := filepath.Join(t.TempDir(), "signal-data")
	store := NewAttachmentStore(base)

	require.NoError(t, store.Init())

	info, err := os.Stat(store.AttachmentsDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(dirPermissions), info.Mode().Perm())
}

func TestAttachmentStoreInitRejectsEmptyPath(t *testing.T) {
	store := NewAttachmentStore("")

	var validationErr *ValidationError
	require.ErrorAs(t, store.Init(), &validationErr)
}

func TestAttachmentStoreTempFileLifecycle(t *testing.T) {
	store := NewAttachmentStore(t.TempDir())
	require.NoError(t, store.Init())

	path, err := store.TempFile("voice-*.mp3", []byte("audio bytes"))
	require.NoError(t, err)
	assert.Equal(t, store.AttachmentsDir(), filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "audio bytes", string(data))

	require.NoError(t, store.Remove([]string{path}))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestAttachmentStoreRemoveIgnoresMissing(t *testing.T) {
	store := NewAttachmentStore(t.TempDir())
	require.NoError(t, store.Init())

	require.NoError(t, store.Remove([]string{
		filepath.Join(store.AttachmentsDir(), "never-existed.png"),
	}))
}
