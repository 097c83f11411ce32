package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/artpar/fndeploy/internal/core/annotations"
	"github.com/artpar/fndeploy/internal/core/digest"
	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	coreruntimes "github.com/artpar/fndeploy/internal/core/runtimes"
	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// ErrMissingContent is reported for an action that has no source.
var ErrMissingContent = errors.New("Action is named in the config but does not exist in the project")

// =============================================================================
// Packages
// =============================================================================

// deployPackageRecord deploys a package's own record, not its actions. An
// unchanged package in an incremental run is skipped but its version entry
// is carried into the response so the saved store stays complete.
func (d *Deployer) deployPackageRecord(ctx context.Context, r *run, pkg project.Package) response.Response {
	plan := r.plan
	params := merge(plan.Parameters, pkg.Parameters)
	env := merge(plan.Environment, pkg.Environment)
	sum := digest.Package(pkg, params, env)

	if plan.Flags.Incremental {
		if info, ok := r.store.Package(pkg.Name); ok && info.Digest == sum {
			d.logger.Debug("package unchanged", "package", pkg.Name)
			out := response.Empty()
			out.PackageVersions[pkg.Name] = info
			return out
		}
	}

	var former map[string]any
	if !pkg.Clean && !plan.CleanNamespace {
		if prev, err := d.platform.GetPackage(ctx, pkg.Name); err == nil {
			former = annotations.FormerPackage(prev.Annotations)
		}
	}
	deployer := annotations.DeployerWithDigest(plan.Deployer, sum)
	annots := annotations.Merge(former, annotations.ForPackage(pkg, deployer))

	result, err := d.platform.UpdatePackage(ctx, pkg.Name, whisk.Package{
		Publish:     pkg.Shared,
		Parameters:  annotations.EncodeParameters(params, env),
		Annotations: annotations.ToKeyValues(annots),
	})
	if err != nil {
		return response.WrapError(err, fmt.Sprintf("package '%s'", pkg.Name))
	}
	out := response.Empty()
	out.PackageVersions[pkg.Name] = versions.Info{Version: result.Version, Digest: sum}
	out.Namespace = namespaceOf(result.Namespace)
	return out
}

// =============================================================================
// Actions
// =============================================================================

// deployAction deploys one action according to where its content comes
// from. Sequences are only queued here; they are deployed after all actions.
func (d *Deployer) deployAction(ctx context.Context, r *run, u actionUnit) response.Response {
	action := u.action
	label := actionLabel(action)

	switch src := action.Source.(type) {
	case project.RemoteBuildError:
		return response.WrapError(src, label)
	case project.RemoteBuildToken:
		return d.processRemoteBuild(ctx, src.ActivationID, label)
	case project.InlineCode:
		return d.deployCode(ctx, r, action, src.Code, u.pkgClean)
	case project.SequenceRef:
		if err := project.CheckSequence(action); err != nil {
			return response.WrapError(err, label)
		}
		r.queueSequence(u.order, action)
		return response.Empty()
	case project.SourceFile:
		data, err := d.reader.ReadFileContents(ctx, src.Path)
		if err != nil {
			return response.WrapError(err, label)
		}
		if coreruntimes.IsBinaryFileExtension(path.Ext(src.Path)) {
			action.Binary = true
		}
		if action.Runtime == "" {
			action.Runtime = d.inferRuntime(ctx, r, src.Path)
		}
		code := string(data)
		if action.Binary {
			code = base64.StdEncoding.EncodeToString(data)
		}
		return d.deployCode(ctx, r, action, code, u.pkgClean)
	case nil:
		return response.WrapError(ErrMissingContent, label)
	default:
		return response.WrapError(fmt.Errorf("unsupported action source %T", src), label)
	}
}

// deployCode resolves the runtime of a code action and deploys it.
func (d *Deployer) deployCode(ctx context.Context, r *run, action project.Action, code string, pkgClean bool) response.Response {
	name := action.QualifiedName()
	if action.Docker == "" {
		if code != "" && action.Runtime == "" {
			return response.WrapError(fmt.Errorf("Action '%s' not deployed: runtime type could not be determined", name), actionLabel(action))
		}
		kind, err := d.resolveRuntime(ctx, r, action.Runtime)
		if err != nil {
			return response.WrapError(fmt.Errorf("Action '%s' not deployed: %w", name, err), actionLabel(action))
		}
		action.Runtime = kind
	}
	exec := &whisk.Exec{Kind: action.Runtime, Code: &code, Binary: action.Binary, Main: action.Main}
	if action.Docker != "" {
		exec.Kind = "blackbox"
		exec.Image = action.Docker
	}
	return d.deployActionExec(ctx, r, action, exec, digest.Action(action, code), pkgClean)
}

// deployActionExec updates one action on the platform. sum is empty for
// sequences, which are never digested or skipped.
func (d *Deployer) deployActionExec(ctx context.Context, r *run, action project.Action, exec *whisk.Exec, sum string, pkgClean bool) response.Response {
	plan := r.plan
	name := action.QualifiedName()
	label := actionLabel(action)

	deployer := plan.Deployer
	if sum != "" {
		if plan.Flags.Incremental {
			if info, ok := r.store.Action(name); ok && info.Digest == sum {
				d.logger.Debug("action unchanged", "action", name)
				return response.WrapSuccess(name, response.KindAction, true, "", map[string]versions.Info{name: info}, "")
			}
		}
		deployer = annotations.DeployerWithDigest(deployer, sum)
	}

	var former map[string]any
	if !action.Clean && !pkgClean {
		if prev, err := d.platform.GetAction(ctx, name); err == nil {
			former = annotations.ToMap(prev.Annotations)
		}
	}
	annots := annotations.Merge(former, annotations.ForAction(action, deployer))

	body := whisk.Action{
		Exec:        exec,
		Annotations: annotations.ToKeyValues(annots),
		Parameters:  annotations.EncodeParameters(action.Parameters, action.Environment),
	}
	if !action.Limits.IsZero() {
		body.Limits = &whisk.Limits{
			Timeout:     action.Limits.Timeout,
			Memory:      action.Limits.Memory,
			Logs:        action.Limits.Logs,
			Concurrency: action.Limits.Concurrency,
		}
	}

	result, err := d.platform.UpdateAction(ctx, name, body)
	if err != nil {
		return response.WrapError(err, label)
	}
	// The action stays deployed when its triggers fail.
	if len(action.Triggers) > 0 && d.triggers != nil {
		if err := d.triggers.Deploy(ctx, action.Triggers, name, plan.Credentials.Namespace); err != nil {
			return response.WrapError(err, label)
		}
	}

	deployed := map[string]versions.Info{}
	if sum != "" {
		deployed[name] = versions.Info{Version: result.Version, Digest: sum}
	}
	return response.WrapSuccess(name, response.KindAction, false, action.Wrapping, deployed, namespaceOf(result.Namespace))
}

// =============================================================================
// Runtimes
// =============================================================================

// inferRuntime derives a runtime kind from a source file name. A file named
// "x.<label>[-<version>].zip" names its runtime in the middle part; other
// files map through their extension.
func (d *Deployer) inferRuntime(ctx context.Context, r *run, file string) string {
	ext := strings.TrimPrefix(path.Ext(file), ".")
	if ext != "zip" {
		return coreruntimes.ForFileExtension(ext)
	}
	_, mid, _ := strings.Cut(strings.TrimSuffix(path.Base(file), ".zip"), ".")
	if mid == "" || d.runtimes == nil {
		return ""
	}
	catalog, err := d.runtimes.Runtimes(ctx, r.plan.Credentials.APIHost)
	if err != nil {
		d.logger.Debug("runtime catalog unavailable", "error", err)
		return ""
	}
	return catalog.ForZipMid(mid)
}

// resolveRuntime validates kind against the catalog and resolves a
// "<label>:default" kind to the label's default image. Without a catalog the
// kind is passed through for the platform to resolve.
func (d *Deployer) resolveRuntime(ctx context.Context, r *run, kind string) (string, error) {
	if kind == "" || d.runtimes == nil {
		return kind, nil
	}
	catalog, err := d.runtimes.Runtimes(ctx, r.plan.Credentials.APIHost)
	if err != nil {
		return "", fmt.Errorf("load runtimes: %w", err)
	}
	if !catalog.IsValid(kind) {
		return "", fmt.Errorf("%w %s", coreruntimes.ErrUnknownRuntime, kind)
	}
	resolved := catalog.Canonical(kind)
	if resolved == "" {
		return "", fmt.Errorf("no default runtime for %s", coreruntimes.Label(kind))
	}
	return resolved, nil
}

// =============================================================================
// Helpers
// =============================================================================

func actionLabel(action project.Action) string {
	return fmt.Sprintf("action '%s'", action.QualifiedName())
}

// namespaceOf returns the namespace part of a platform-reported namespace,
// which for packaged entities is "ns/pkg".
func namespaceOf(reported string) string {
	ns, _, _ := strings.Cut(reported, "/")
	return ns
}

// merge lays next over base without modifying either.
func merge(base, next map[string]any) map[string]any {
	if len(base) == 0 && len(next) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(next))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}
