package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
)

// deployWeb runs the web phase: a remote web build, a reported web build
// error, or batched deployment of each web resource.
func (d *Deployer) deployWeb(ctx context.Context, r *run) []response.Response {
	plan := r.plan
	switch {
	case plan.WebBuildResult != "":
		return []response.Response{d.processRemoteBuild(ctx, plan.WebBuildResult, "web content")}
	case plan.WebBuildError != "":
		return []response.Response{response.WrapError(errors.New(plan.WebBuildError), "web content")}
	case plan.Flags.WebLocal != "" && r.webDir == "":
		// The directory is missing or could not be prepared; Deploy has
		// already reported that failure.
		return nil
	}
	return deployInBatches(ctx, d.cfg.ChunkSize, plan.Web, func(ctx context.Context, res project.WebResource) response.Response {
		return d.deployWebResource(ctx, r, res)
	})
}

// deployWebResource publishes one resource to the configured target. With
// action wrapping the resource was turned into an action beforehand and
// contributes nothing here.
func (d *Deployer) deployWebResource(ctx context.Context, r *run, res project.WebResource) response.Response {
	switch {
	case r.plan.ActionWrapPackage != "":
		return response.Empty()
	case r.webDir != "":
		return d.local.Deploy(ctx, res, r.webDir)
	case d.bucket != nil:
		body, err := d.reader.ReadFileContents(ctx, res.FilePath)
		if err != nil {
			return response.WrapError(err, fmt.Sprintf("web resource '%s'", res.SimpleName))
		}
		return d.bucket.Deploy(ctx, res, body)
	default:
		return response.WrapError(fmt.Errorf("No bucket client and/or bucket spec for '%s'", res.SimpleName), "web resources")
	}
}

// prepareActionWrap returns the plan's packages with every web resource
// wrapped as a web action in the action-wrap package. Resources that cannot
// be read are reported as failures.
func (d *Deployer) prepareActionWrap(ctx context.Context, plan *project.Plan) ([]project.Package, []response.Response) {
	if plan.ActionWrapPackage == "" || plan.WebBuildResult != "" || plan.WebBuildError != "" || len(plan.Web) == 0 {
		return plan.Packages, nil
	}

	var wrapped []project.Action
	var failures []response.Response
	for _, res := range plan.Web {
		body, err := d.reader.ReadFileContents(ctx, res.FilePath)
		if err != nil {
			failures = append(failures, response.WrapError(err, fmt.Sprintf("web resource '%s'", res.SimpleName)))
			continue
		}
		wrapped = append(wrapped, project.WrapWebResource(res, body, plan.ActionWrapPackage))
	}

	packages := make([]project.Package, 0, len(plan.Packages)+1)
	found := false
	for _, pkg := range plan.Packages {
		if pkg.Name == plan.ActionWrapPackage {
			pkg.Actions = append(append([]project.Action(nil), pkg.Actions...), wrapped...)
			found = true
		}
		packages = append(packages, pkg)
	}
	if !found {
		packages = append(packages, project.Package{Name: plan.ActionWrapPackage, Actions: wrapped})
	}
	d.logger.Debug("web resources wrapped as actions", "package", plan.ActionWrapPackage, "count", len(wrapped))
	return packages, failures
}
