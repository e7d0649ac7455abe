package fsutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/voice-installer/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCacheDir_WithOverride(t *testing.T) {
	expectedPath := "/custom/cache/dir"
	t.Setenv("CACHE_DIR", expectedPath)

	assert.Equal(t, expectedPath, fsutil.GetCacheDir())
	assert.Equal(t, filepath.Join(expectedPath, "voices"), fsutil.DefaultPackageRoot())
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	testPath := filepath.Join(t.TempDir(), "new", "dir")

	require.NoError(t, fsutil.EnsureDir(testPath))

	info, err := os.Stat(testPath)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, fsutil.EnsureDir(testPath), "EnsureDir must accept an existing directory")
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c_d", fsutil.SanitizeFilename("a/b:c*d"))
	assert.Equal(t, "voice.onnx", fsutil.SanitizeFilename("voice.onnx"))
}

func TestCheckName(t *testing.T) {
	t.Parallel()

	require.NoError(t, fsutil.CheckName("enUS"))

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, "../etc"} {
		require.ErrorIs(t, fsutil.CheckName(name), fsutil.ErrUnsafeName, name)
	}
}

func TestCopyFileAtomic_ReplacesDestination(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.onnx")
	dst := filepath.Join(dir, "dst.onnx")

	require.NoError(t, os.WriteFile(src, []byte("new model"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("old model with more bytes"), 0o600))

	require.NoError(t, fsutil.CopyFileAtomic(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new model", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temporary files may be left behind")
}

func TestCopyFileAtomic_MissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := fsutil.CopyFileAtomic(filepath.Join(dir, "missing"), filepath.Join(dir, "out"))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "doc.json")

	require.NoError(t, fsutil.WriteFileAtomic(path, []byte("[]")))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))
}
