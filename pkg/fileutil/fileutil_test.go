package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/catalog-crawler/pkg/fileutil"
)

func TestEnsureDir_SinglePathComponent(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "testdir")

	err := fileutil.EnsureDir(targetDir)
	require.Nil(t, err)

	info, statErr := os.Stat(targetDir)
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_MultiplePathComponents(t *testing.T) {
	tmpDir := t.TempDir()

	err := fileutil.EnsureDir(tmpDir, "parent", "child", "grandchild")
	require.Nil(t, err)

	info, statErr := os.Stat(filepath.Join(tmpDir, "parent", "child", "grandchild"))
	require.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestEnsureDir_DirectoryAlreadyExists(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "existing")
	require.NoError(t, os.MkdirAll(targetDir, 0755))

	assert.Nil(t, fileutil.EnsureDir(targetDir))
}

func TestEnsureDir_PermissionError(t *testing.T) {
	if filepath.Separator == '\\' || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for this user")
	}

	readonlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.MkdirAll(readonlyDir, 0555))

	err := fileutil.EnsureDir(filepath.Join(readonlyDir, "subdir"))
	require.NotNil(t, err)

	var fileErr *fileutil.FileError
	if assert.ErrorAs(t, err, &fileErr) {
		assert.False(t, fileErr.Retryable)
		assert.Equal(t, fileutil.ErrCausePathError, fileErr.Cause)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")

	path, err := fileutil.WriteFileAtomic(dir, "run.json", []byte(`{"ok":true}`))
	require.Nil(t, err)
	assert.Equal(t, filepath.Join(dir, "run.json"), path)

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `{"ok":true}`, string(content))

	entries, readErr := os.ReadDir(dir)
	require.NoError(t, readErr)
	assert.Len(t, entries, 1, "temporary file must not remain")
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	dir := t.TempDir()

	_, err := fileutil.WriteFileAtomic(dir, "a.json", []byte("first"))
	require.Nil(t, err)
	path, err := fileutil.WriteFileAtomic(dir, "a.json", []byte("second"))
	require.Nil(t, err)

	content, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "second", string(content))
}
