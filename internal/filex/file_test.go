package filex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrijs2005/bridgeupload/internal/cryptox"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestReadForUpload_ByExtension(t *testing.T) {
	path := writeFile(t, "answers.json", []byte(`{"q1":"yes"}`))

	f, err := ReadForUpload(path)
	require.NoError(t, err)

	require.Equal(t, "answers.json", f.Name)
	require.Equal(t, []byte(`{"q1":"yes"}`), f.Data)
	require.Equal(t, cryptox.ContentMD5(f.Data), f.ContentMD5)
	require.Equal(t, "application/json", f.ContentType)
}

func TestReadForUpload_SniffsUnknownExtension(t *testing.T) {
	path := writeFile(t, "payload", []byte("plain words"))

	f, err := ReadForUpload(path)
	require.NoError(t, err)
	require.Equal(t, "text/plain; charset=utf-8", f.ContentType)
}

func TestReadForUpload_Errors(t *testing.T) {
	_, err := ReadForUpload(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)

	_, err = ReadForUpload(writeFile(t, "empty.zip", nil))
	require.Error(t, err)
}
