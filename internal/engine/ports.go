package engine

import (
	"context"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	coreruntimes "github.com/artpar/fndeploy/internal/core/runtimes"
	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// =============================================================================
// Ports
// =============================================================================

// Platform is the remote functions platform, scoped to one namespace.
type Platform interface {
	GetPackage(ctx context.Context, name string) (*whisk.Package, error)
	UpdatePackage(ctx context.Context, name string, pkg whisk.Package) (*whisk.Package, error)
	DeletePackage(ctx context.Context, name string) error
	ListPackages(ctx context.Context) ([]whisk.Package, error)

	GetAction(ctx context.Context, name string) (*whisk.Action, error)
	UpdateAction(ctx context.Context, name string, action whisk.Action) (*whisk.Action, error)
	DeleteAction(ctx context.Context, name string) error
	ListActions(ctx context.Context) ([]whisk.Action, error)

	GetActivation(ctx context.Context, id string) (*whisk.Activation, error)
}

// VersionPersistence loads and saves version entries between runs.
type VersionPersistence interface {
	Load(ctx context.Context, id versions.Identity) (versions.Entry, error)
	Save(ctx context.Context, id versions.Identity, entry versions.Entry) error
}

// ContentReader reads action sources and web resource bodies.
type ContentReader interface {
	ReadFileContents(ctx context.Context, path string) ([]byte, error)
}

// BucketPublisher uploads web resources to a storage bucket.
type BucketPublisher interface {
	Deploy(ctx context.Context, res project.WebResource, body []byte) response.Response
	// Clean empties the bucket area. A non-empty string is a warning.
	Clean(ctx context.Context) (string, error)
}

// LocalPublisher copies web resources into a local directory.
type LocalPublisher interface {
	Ensure(dir string) (string, error)
	Deploy(ctx context.Context, res project.WebResource, dir string) response.Response
	Clean(dir string) error
}

// TriggerClient manages the triggers attached to actions.
type TriggerClient interface {
	Deploy(ctx context.Context, triggers []project.Trigger, function, namespace string) error
	Undeploy(ctx context.Context, names []string, namespace string) error
	List(ctx context.Context, namespace, function string) ([]string, error)
}

// RuntimeCatalog returns the runtimes an API host supports.
type RuntimeCatalog interface {
	Runtimes(ctx context.Context, apihost string) (coreruntimes.Config, error)
}

// Feedback receives user-facing progress and warnings. Calls must not block.
type Feedback interface {
	Progress(format string, args ...any)
	Warn(format string, args ...any)
}
