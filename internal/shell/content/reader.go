// Package content reads project files.
package content

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
)

// Reader reads files relative to a project root.
type Reader struct {
	fs afero.Fs
}

// NewReader creates a reader over fsys rooted at root. A nil fsys means the
// OS filesystem; an empty root leaves paths untouched.
func NewReader(fsys afero.Fs, root string) *Reader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if root != "" {
		fsys = afero.NewBasePathFs(fsys, root)
	}
	return &Reader{fs: fsys}
}

// ReadFileContents returns the bytes of path.
func (r *Reader) ReadFileContents(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
