package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/artpar/fndeploy/internal/engine"
	"github.com/artpar/fndeploy/internal/shell/content"
	"github.com/artpar/fndeploy/internal/shell/feedback"
	"github.com/artpar/fndeploy/internal/shell/runtimes"
	"github.com/artpar/fndeploy/internal/shell/triggers"
	"github.com/artpar/fndeploy/internal/shell/versionstore"
	"github.com/artpar/fndeploy/internal/shell/web"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess           = 0
	ExitConfigError       = 1
	ExitPlanError         = 2
	ExitDeployFailures    = 3
	ExitVersionStoreError = 4
)

// =============================================================================
// App
// =============================================================================

// App is one wired deployment run.
type App struct {
	config   *Config
	deployer *engine.Deployer
	versions engine.VersionPersistence
	closeFn  func() error
	logger   *slog.Logger
}

// NewApp connects every collaborator the plan needs.
func NewApp(cfg *Config, plan *project.Plan, logger *slog.Logger) (*App, error) {
	platform, err := whisk.NewClient(whisk.Config{
		APIHost:   cfg.Platform.APIHost,
		Auth:      cfg.Platform.Auth,
		Namespace: cfg.Platform.Namespace,
		Timeout:   cfg.Platform.Timeout,
	}, logger)
	if err != nil {
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	app := &App{config: cfg, logger: logger, closeFn: func() error { return nil }}

	switch cfg.Versions.Backend {
	case "sqlite":
		store, err := versionstore.NewSQLiteStore(cfg.Versions.DSN)
		if err != nil {
			return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitVersionStoreError}
		}
		app.versions = store
		app.closeFn = store.Close
	default:
		app.versions = versionstore.NewFileStore(afero.NewOsFs())
	}

	trig, err := triggers.New(triggers.Config{
		APIEndpoint: cfg.Triggers.APIEndpoint,
		APIToken:    cfg.Triggers.APIToken,
	}, platform, logger)
	if err != nil {
		app.closeFn()
		return nil, &AppError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	deps := engine.Deps{
		Platform: platform,
		Versions: app.versions,
		Reader:   content.NewReader(afero.NewOsFs(), ""),
		Feedback: newFeedback(cfg, logger),
		Triggers: trig,
	}
	if cfg.Bucket.Enabled && plan.Bucket != nil {
		deps.Bucket = web.NewBucketPublisher(web.BucketConfig{
			Endpoint:  cfg.Bucket.Endpoint,
			Region:    cfg.Bucket.Region,
			Name:      cfg.Bucket.Name,
			AccessKey: cfg.Bucket.AccessKey,
			SecretKey: cfg.Bucket.SecretKey,
		}, plan.Bucket, logger)
	}
	if plan.Flags.WebLocal != "" {
		deps.Local = web.NewLocalPublisher(afero.NewOsFs(), logger)
	}
	if cfg.Runtimes.Enabled {
		loader := runtimes.NewLoader(&http.Client{Timeout: cfg.Platform.Timeout}, logger)
		deps.Runtimes = runtimes.NewCache(loader, cfg.Runtimes.CacheTTL, time.Now)
	}

	app.deployer = engine.New(deps, engine.Config{
		ChunkSize:    cfg.Deploy.ChunkSize,
		BuildTimeout: cfg.Deploy.BuildTimeout,
		PollInterval: cfg.Deploy.PollInterval,
	}, logger)
	return app, nil
}

// newFeedback keeps progress readable on a terminal and structured when the
// logs are.
func newFeedback(cfg *Config, logger *slog.Logger) engine.Feedback {
	if strings.ToLower(cfg.Log.Format) == "json" {
		return feedback.NewLogger(logger)
	}
	return feedback.NewWriter(os.Stderr)
}

// Deploy runs the plan and persists the resulting versions. The response is
// returned even when saving fails.
func (a *App) Deploy(ctx context.Context, plan *project.Plan) (response.Response, error) {
	resp, entry, err := a.deployer.Run(ctx, plan)
	if err != nil {
		code := ExitDeployFailures
		if plan.Flags.Incremental {
			code = ExitVersionStoreError
		}
		return resp, &AppError{Op: "Deploy", Err: err, ExitCode: code}
	}

	if err := a.versions.Save(ctx, engine.Identity(plan), entry); err != nil {
		return resp, &AppError{Op: "SaveVersions", Err: err, ExitCode: ExitVersionStoreError}
	}
	a.logger.Debug("versions saved",
		"actions", len(entry.ActionVersions),
		"packages", len(entry.PackageVersions),
	)
	return resp, nil
}

// Close releases the version store.
func (a *App) Close() error {
	return a.closeFn()
}

// =============================================================================
// Errors
// =============================================================================

// AppError represents an error that ends the run with a specific exit code.
type AppError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *AppError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}
