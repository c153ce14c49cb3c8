package blob

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOpenRemove(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := s.Save("abc123", "promo.mp4", strings.NewReader("MEDIA"))
	require.NoError(t, err)
	assert.Equal(t, "abc123_promo.mp4", filepath.Base(path))

	f, err := s.Open(path)
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "MEDIA", string(body))

	require.NoError(t, s.Remove(path))
	_, err = s.Open(path)
	assert.True(t, os.IsNotExist(err))
}

// Повторное удаление и пустой локатор — не ошибка.
func TestRemoveMissing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, s.Remove(filepath.Join(t.TempDir(), "nope.mp4")))
	assert.NoError(t, s.Remove(""))
}

// Имя файла не должно вытаскивать blob за пределы каталога.
func TestSaveSanitizesName(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	require.NoError(t, err)

	path, err := s.Save("id1", "../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	path, err = s.Save("id2", "..", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "id2_file", filepath.Base(path))
}

func TestNewStoreCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "videos")
	_, err := NewStore(dir)
	require.NoError(t, err)

	st, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, st.IsDir())
}
