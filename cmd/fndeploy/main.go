package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/artpar/fndeploy/internal/core/project"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// options are the command line flags.
type options struct {
	plan        string
	config      string
	incremental bool
	clean       bool
	include     string
	exclude     string
	webLocal    string
	version     bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("fndeploy", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.plan, "plan", "", "Path to the resolved project plan (YAML)")
	fs.StringVar(&opts.config, "config", "", "Path to config file")
	fs.BoolVar(&opts.incremental, "incremental", false, "Skip actions and packages whose content is unchanged")
	fs.BoolVar(&opts.clean, "clean", false, "Clean the namespace before deploying")
	fs.StringVar(&opts.include, "include", "", "Comma separated packages, actions or 'web' to deploy")
	fs.StringVar(&opts.exclude, "exclude", "", "Comma separated packages, actions or 'web' to skip")
	fs.StringVar(&opts.webLocal, "web-local", "", "Copy web content to this directory instead of deploying it")
	fs.BoolVar(&opts.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if !opts.version && opts.plan == "" {
		return nil, errors.New("-plan is required")
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) int {
	opts, err := parseFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "usage error: %v\n", err)
		return ExitConfigError
	}

	if opts.version {
		fmt.Fprintf(stdout, "fndeploy %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(opts.config)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg).With("run_id", uuid.NewString())
	logger.Info("starting fndeploy",
		"version", Version,
		"plan", opts.plan,
		"apihost", cfg.Platform.APIHost,
		"namespace", cfg.Platform.Namespace,
	)

	plan, err := loadPlan(opts, cfg)
	if err != nil {
		logger.Error("invalid plan", "error", err)
		return ExitPlanError
	}

	app, err := NewApp(cfg, plan, logger)
	if err != nil {
		return exitFor(logger, "failed to set up deployment", err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := app.Deploy(ctx, plan)
	if err != nil {
		var appErr *AppError
		if errors.As(err, &appErr) && appErr.Op == "Deploy" {
			return exitFor(logger, "deployment did not start", err)
		}
		// The run itself happened; report it before failing on the save.
		writeReport(stdout, resp)
		return exitFor(logger, "failed to save versions", err)
	}

	writeReport(stdout, resp)
	logger.Info("deployment finished",
		"succeeded", len(resp.Successes),
		"failed", len(resp.Failures),
		"ignored", len(resp.Ignored),
	)
	if resp.HasFailures() {
		return ExitDeployFailures
	}
	return ExitSuccess
}

// loadPlan reads, scopes and validates the plan named on the command line.
func loadPlan(opts *options, cfg *Config) (*project.Plan, error) {
	data, err := os.ReadFile(opts.plan)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	plan, err := project.Parse(data)
	if err != nil {
		return nil, err
	}

	if plan.ProjectPath == "" {
		plan.ProjectPath = filepath.Dir(opts.plan)
	}
	if abs, err := filepath.Abs(plan.ProjectPath); err == nil {
		plan.ProjectPath = abs
	}
	plan.Credentials = project.Credentials{
		Namespace: cfg.Platform.Namespace,
		APIHost:   cfg.Platform.APIHost,
		Auth:      cfg.Platform.Auth,
	}
	plan.Flags = project.Flags{Incremental: opts.incremental, WebLocal: opts.webLocal}
	plan.CleanNamespace = opts.clean

	project.ApplyIncluder(plan, project.NewIncluder(splitList(opts.include), splitList(opts.exclude)))
	if err := project.Validate(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func writeReport(w io.Writer, resp any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
	}
}

func exitFor(logger *slog.Logger, msg string, err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		logger.Error(msg, "error", appErr.Err, "operation", appErr.Op)
		return appErr.ExitCode
	}
	logger.Error(msg, "error", err)
	return ExitConfigError
}
