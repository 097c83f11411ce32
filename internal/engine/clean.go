package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/artpar/fndeploy/internal/shell/whisk"
	"golang.org/x/sync/errgroup"
)

// CleanOrLoadVersions prepares the namespace and the version store for a run.
// An incremental run loads the persisted versions and cleans nothing. Any
// other run starts from an empty store and cleans what the plan asks for:
// the web area, then either the whole namespace or the packages and actions
// flagged clean that are in scope.
func (d *Deployer) CleanOrLoadVersions(ctx context.Context, plan *project.Plan) (*versions.Store, error) {
	if plan.Flags.Incremental {
		entry, err := d.versions.Load(ctx, Identity(plan))
		if err != nil {
			return nil, fmt.Errorf("load versions: %w", err)
		}
		return versions.NewStore(entry), nil
	}

	store := versions.NewStore(versions.NewEntry())
	in := includerOf(plan)

	bucketClean := plan.Bucket != nil && plan.Bucket.Clean
	if in.IsWebIncluded() && plan.WebBuildResult == "" && (plan.CleanNamespace || bucketClean) {
		if err := d.cleanWeb(ctx, plan); err != nil {
			return nil, err
		}
	}

	if plan.CleanNamespace && in.IsIncludingEverything() {
		if err := d.wipe(ctx, plan.Credentials.Namespace); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err := d.cleanActionsAndPackages(ctx, plan, in, store); err != nil {
		return nil, err
	}
	return store, nil
}

func (d *Deployer) cleanWeb(ctx context.Context, plan *project.Plan) error {
	switch {
	case d.bucket != nil:
		warning, err := d.bucket.Clean(ctx)
		if err != nil {
			return fmt.Errorf("clean bucket: %w", err)
		}
		if warning != "" {
			d.feedback.Warn("%s", warning)
		}
	case plan.Flags.WebLocal != "" && d.local != nil:
		if err := d.local.Clean(plan.Flags.WebLocal); err != nil {
			return err
		}
	}
	return nil
}

// cleanActionsAndPackages deletes the in-scope packages and actions marked
// clean. Failing action deletes are ignored; the action may not exist yet.
func (d *Deployer) cleanActionsAndPackages(ctx context.Context, plan *project.Plan, in project.Includer, store *versions.Store) error {
	g, ctx := errgroup.WithContext(ctx)
	namespace := plan.Credentials.Namespace
	for _, pkg := range plan.Packages {
		if pkg.Clean && !pkg.IsDefault() && in.IsPackageIncluded(pkg.Name, true) {
			g.Go(func() error {
				return d.cleanPackage(ctx, pkg.Name, namespace, store)
			})
			continue
		}
		for _, action := range pkg.Actions {
			if !action.Clean || !in.IsActionIncluded(pkg.Name, action.Name) {
				continue
			}
			if _, building := action.Source.(project.RemoteBuildToken); building {
				continue
			}
			name := action.QualifiedName()
			store.RemoveAction(name)
			g.Go(func() error {
				if err := d.deleteAction(ctx, name, namespace); err != nil {
					d.logger.Debug("clean action failed", "action", name, "error", err)
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// cleanPackage deletes a package's actions and then the package, repeating
// until the package is empty because new actions may become visible while
// deleting. A package that does not exist is already clean.
func (d *Deployer) cleanPackage(ctx context.Context, name, namespace string, store *versions.Store) error {
	d.logger.Debug("cleaning package", "package", name)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		pkg, err := d.platform.GetPackage(ctx, name)
		if whisk.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("clean package %s: %w", name, err)
		}
		if len(pkg.Actions) == 0 {
			store.RemovePackage(name)
			if err := d.platform.DeletePackage(ctx, name); err != nil && !whisk.IsNotFound(err) {
				return fmt.Errorf("clean package %s: %w", name, err)
			}
			return nil
		}
		for _, action := range pkg.Actions {
			qualified := name + "/" + action.Name
			store.RemoveAction(qualified)
			if err := d.deleteAction(ctx, qualified, namespace); err != nil && !whisk.IsNotFound(err) {
				return fmt.Errorf("clean package %s: %w", name, err)
			}
		}
	}
}

// deleteAction removes an action together with the triggers attached to it.
// Trigger failures are reported as warnings.
func (d *Deployer) deleteAction(ctx context.Context, name, namespace string) error {
	if d.triggers != nil {
		names, err := d.triggers.List(ctx, namespace, name)
		if err == nil && len(names) > 0 {
			err = d.triggers.Undeploy(ctx, names, namespace)
		}
		if err != nil {
			d.feedback.Warn("Triggers of action '%s' were not removed: %v", name, err)
		}
	}
	return d.platform.DeleteAction(ctx, name)
}

// wipe removes every trigger, action and package of the namespace.
func (d *Deployer) wipe(ctx context.Context, namespace string) error {
	d.logger.Info("wiping namespace", "namespace", namespace)
	if d.triggers != nil {
		names, err := d.triggers.List(ctx, namespace, "")
		if err == nil && len(names) > 0 {
			err = d.triggers.Undeploy(ctx, names, namespace)
		}
		if err != nil {
			d.feedback.Warn("Triggers were not removed: %v", err)
		}
	}

	actions, err := d.platform.ListActions(ctx)
	if err != nil {
		return fmt.Errorf("wipe namespace: %w", err)
	}
	for _, action := range actions {
		name := action.Name
		if _, pkg, ok := strings.Cut(action.Namespace, "/"); ok {
			name = pkg + "/" + action.Name
		}
		if err := d.platform.DeleteAction(ctx, name); err != nil && !whisk.IsNotFound(err) {
			return fmt.Errorf("wipe namespace: %w", err)
		}
	}

	packages, err := d.platform.ListPackages(ctx)
	if err != nil {
		return fmt.Errorf("wipe namespace: %w", err)
	}
	for _, pkg := range packages {
		if err := d.cleanPackage(ctx, pkg.Name, namespace, nil); err != nil {
			return fmt.Errorf("wipe namespace: %w", err)
		}
	}
	return nil
}
