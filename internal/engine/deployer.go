// Package engine orchestrates a deployment run: the cleaning phase, batched
// deployment of web resources, packages and actions, ordered deployment of
// sequences, and the waits on remote builds. Every unit ends in exactly one
// outcome in the combined response. Nothing is rolled back: a run that fails
// part way leaves the namespace partially updated and says so in the report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/artpar/fndeploy/internal/core/sequence"
	"github.com/artpar/fndeploy/internal/core/versions"
)

// Config tunes a Deployer.
type Config struct {
	// ChunkSize bounds how many unit operations are in flight at once.
	ChunkSize int
	// BuildTimeout bounds the wait for one remote build.
	BuildTimeout time.Duration
	// PollInterval is the delay between remote build polls.
	PollInterval time.Duration
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    25,
		BuildTimeout: 15 * time.Minute,
		PollInterval: 5 * time.Second,
	}
}

// Deps are the collaborators of a Deployer. Platform, Versions and Reader
// are required; the rest may be nil when not configured.
type Deps struct {
	Platform Platform
	Versions VersionPersistence
	Reader   ContentReader
	Feedback Feedback

	Bucket   BucketPublisher
	Local    LocalPublisher
	Triggers TriggerClient
	Runtimes RuntimeCatalog
}

// Deployer runs deployments.
type Deployer struct {
	platform Platform
	versions VersionPersistence
	reader   ContentReader
	feedback Feedback
	bucket   BucketPublisher
	local    LocalPublisher
	triggers TriggerClient
	runtimes RuntimeCatalog

	cfg    Config
	logger *slog.Logger
}

// New creates a Deployer. Zero Config fields take their defaults.
func New(deps Deps, cfg Config, logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = def.BuildTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if deps.Feedback == nil {
		deps.Feedback = discardFeedback{}
	}
	return &Deployer{
		platform: deps.Platform,
		versions: deps.Versions,
		reader:   deps.Reader,
		feedback: deps.Feedback,
		bucket:   deps.Bucket,
		local:    deps.Local,
		triggers: deps.Triggers,
		runtimes: deps.Runtimes,
		cfg:      cfg,
		logger:   logger.With("component", "deployer"),
	}
}

// ErrNoLocalPublisher is reported when web content is meant for a local
// directory but the deployer has no way to write there.
var ErrNoLocalPublisher = errors.New("no local publisher for web directory")

type discardFeedback struct{}

func (discardFeedback) Progress(string, ...any) {}
func (discardFeedback) Warn(string, ...any)     {}

// Identity returns the key the plan's versions are persisted under.
func Identity(plan *project.Plan) versions.Identity {
	return versions.Identity{
		ProjectPath: plan.ProjectPath,
		Namespace:   plan.Credentials.Namespace,
		APIHost:     plan.Credentials.APIHost,
	}
}

// Run cleans (or loads versions) and then deploys. Besides the report it
// returns the version entry to persist: the versions the run started from,
// less what the cleaning phase removed, updated with what was deployed. The
// error is non-nil only when the cleaning phase fails, in which case nothing
// was deployed.
func (d *Deployer) Run(ctx context.Context, plan *project.Plan) (response.Response, versions.Entry, error) {
	store, err := d.CleanOrLoadVersions(ctx, plan)
	if err != nil {
		return response.Response{}, versions.Entry{}, err
	}
	resp := d.Deploy(ctx, plan, store)
	return resp, resp.VersionsOver(store.Snapshot()), nil
}

// =============================================================================
// Run State
// =============================================================================

// run is the state of one Deploy call.
type run struct {
	plan   *project.Plan
	store  *versions.Store
	webDir string

	seqMu     sync.Mutex
	sequences []queuedSequence
}

type queuedSequence struct {
	order  int
	action project.Action
}

// queueSequence records a sequence found while deploying actions.
func (r *run) queueSequence(order int, action project.Action) {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.sequences = append(r.sequences, queuedSequence{order: order, action: action})
}

// actionUnit is one action scheduled for deployment.
type actionUnit struct {
	order    int
	action   project.Action
	pkgClean bool
}

// =============================================================================
// Deploy
// =============================================================================

// Deploy pushes the plan to the namespace. Phases run in order: web
// resources, package records, actions, then sequences. Within the first
// three, units are deployed in batches of ChunkSize. store holds the versions
// used for skip decisions; it may be nil for a full deployment.
func (d *Deployer) Deploy(ctx context.Context, plan *project.Plan, store *versions.Store) response.Response {
	r := &run{plan: plan, store: store}
	if r.store == nil {
		r.store = versions.NewStore(versions.NewEntry())
	}
	var responses []response.Response

	switch {
	case plan.Flags.WebLocal == "":
	case d.local != nil:
		dir, err := d.local.Ensure(plan.Flags.WebLocal)
		if err != nil {
			responses = append(responses, response.WrapError(err, "web content"))
		}
		r.webDir = dir
	case len(plan.Web) > 0:
		responses = append(responses, response.WrapError(fmt.Errorf("%w '%s'", ErrNoLocalPublisher, plan.Flags.WebLocal), "web content"))
	}

	packages, wrapFailures := d.prepareActionWrap(ctx, plan)
	responses = append(responses, wrapFailures...)

	responses = append(responses, d.deployWeb(ctx, r)...)

	var records []project.Package
	var units []actionUnit
	for _, pkg := range packages {
		if err := project.CheckDefaultPackage(plan, pkg); err != nil {
			responses = append(responses, response.WrapError(err, fmt.Sprintf("package '%s'", pkg.Name)))
			continue
		}
		if !pkg.IsDefault() {
			records = append(records, pkg)
		}
		clean := pkg.Clean || plan.CleanNamespace
		for _, action := range pkg.Actions {
			units = append(units, actionUnit{order: len(units), action: action, pkgClean: clean})
		}
	}

	responses = append(responses, deployInBatches(ctx, d.cfg.ChunkSize, records, func(ctx context.Context, pkg project.Package) response.Response {
		return d.deployPackageRecord(ctx, r, pkg)
	})...)
	d.logger.Debug("package records deployed", "count", len(records))

	responses = append(responses, deployInBatches(ctx, d.cfg.ChunkSize, units, func(ctx context.Context, u actionUnit) response.Response {
		return d.deployAction(ctx, r, u)
	})...)
	d.logger.Debug("actions deployed", "count", len(units))

	responses = append(responses, response.Strays(plan.Strays))
	responses = append(responses, d.deploySequences(ctx, r, packages)...)

	out := response.Combine(responses...)
	out.APIHost = plan.Credentials.APIHost
	if out.Namespace == "" {
		out.Namespace = plan.Credentials.Namespace
	}
	return out
}

// knownActions returns the fully qualified names of every action in packages.
func knownActions(packages []project.Package, namespace string) map[string]bool {
	known := map[string]bool{}
	for _, pkg := range packages {
		for _, a := range pkg.Actions {
			known[sequence.ActionFQN(a, namespace)] = true
		}
	}
	return known
}

func includerOf(plan *project.Plan) project.Includer {
	if plan.Includer == nil {
		return project.IncludeEverything()
	}
	return plan.Includer
}
