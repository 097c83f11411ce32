package web

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/spf13/afero"
)

// LocalPublisher copies web resources into a local directory.
type LocalPublisher struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewLocalPublisher creates a local publisher over fsys. A nil fsys means
// the OS filesystem.
func NewLocalPublisher(fsys afero.Fs, logger *slog.Logger) *LocalPublisher {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPublisher{fs: fsys, logger: logger.With("component", "web-local")}
}

// Ensure creates dir if needed and returns its absolute form.
func (p *LocalPublisher) Ensure(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve web directory: %w", err)
	}
	if err := p.fs.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create web directory: %w", err)
	}
	return abs, nil
}

// Deploy copies one resource to dir/<simple name>.
func (p *LocalPublisher) Deploy(_ context.Context, res project.WebResource, dir string) response.Response {
	label := fmt.Sprintf("web resource '%s'", res.SimpleName)
	data, err := afero.ReadFile(p.fs, res.FilePath)
	if err != nil {
		return response.WrapError(fmt.Errorf("read %s: %w", res.FilePath, err), label)
	}
	dest := filepath.Join(dir, filepath.FromSlash(res.SimpleName))
	if err := p.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return response.WrapError(fmt.Errorf("create %s: %w", filepath.Dir(dest), err), label)
	}
	if err := afero.WriteFile(p.fs, dest, data, 0o644); err != nil {
		return response.WrapError(fmt.Errorf("write %s: %w", dest, err), label)
	}
	p.logger.Debug("copied web resource", "from", res.FilePath, "to", dest)
	return response.WrapSuccess(dest, response.KindWeb, false, "", nil, "")
}

// Clean removes dir and everything in it.
func (p *LocalPublisher) Clean(dir string) error {
	if err := p.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove web directory: %w", err)
	}
	return nil
}
