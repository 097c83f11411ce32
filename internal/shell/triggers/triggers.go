// Package triggers installs and removes the scheduled triggers attached to
// actions. Two backends exist: the legacy one invokes helper actions in the
// /nimbella/triggers package, the API one calls the DigitalOcean functions
// triggers API. The backend is chosen once by New.
package triggers

import (
	"context"
	"log/slog"

	"github.com/artpar/fndeploy/internal/core/project"
)

// Client manages the triggers of a namespace.
type Client interface {
	// Deploy installs triggers for function, overwriting same-named ones.
	Deploy(ctx context.Context, triggers []project.Trigger, function, namespace string) error

	// Undeploy removes triggers by name.
	Undeploy(ctx context.Context, names []string, namespace string) error

	// List returns the trigger names of a namespace, or only those of
	// function when it is non-empty.
	List(ctx context.Context, namespace, function string) ([]string, error)
}

// Config selects and configures the backend. Both fields must be set to
// use the API backend.
type Config struct {
	APIEndpoint string
	APIToken    string
}

// UsesAPI reports whether cfg selects the API backend.
func (c Config) UsesAPI() bool {
	return c.APIEndpoint != "" && c.APIToken != ""
}

// New returns the backend selected by cfg. invoker is used by the legacy
// backend.
func New(cfg Config, invoker Invoker, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UsesAPI() {
		logger.Debug("using trigger API", "endpoint", cfg.APIEndpoint)
		return NewAPIClient(cfg, logger)
	}
	return NewLegacyClient(invoker, logger), nil
}
