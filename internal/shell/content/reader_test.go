package content

import (
	"context"
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader_ReadFileContents(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/packages/hello.js", []byte("x"), 0o644))

	data, err := NewReader(fsys, "").ReadFileContents(context.Background(), "/proj/packages/hello.js")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestReader_Rooted(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/proj/web/index.html", []byte("<p>"), 0o644))

	data, err := NewReader(fsys, "/proj").ReadFileContents(context.Background(), "web/index.html")
	require.NoError(t, err)
	assert.Equal(t, "<p>", string(data))
}

func TestReader_Missing(t *testing.T) {
	_, err := NewReader(afero.NewMemMapFs(), "").ReadFileContents(context.Background(), "/nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestReader_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReader(afero.NewMemMapFs(), "").ReadFileContents(ctx, "/x")
	assert.ErrorIs(t, err, context.Canceled)
}
