package engine

import (
	"context"
	"sort"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/artpar/fndeploy/internal/core/sequence"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// deploySequences deploys the queued sequences one at a time, each after the
// sequences it references. A cycle fails the whole phase and deploys nothing.
func (d *Deployer) deploySequences(ctx context.Context, r *run, packages []project.Package) []response.Response {
	r.seqMu.Lock()
	queued := append([]queuedSequence(nil), r.sequences...)
	r.seqMu.Unlock()
	if len(queued) == 0 {
		return nil
	}

	sort.Slice(queued, func(i, j int) bool { return queued[i].order < queued[j].order })
	seqs := make([]project.Action, len(queued))
	for i, q := range queued {
		seqs[i] = q.action
	}

	namespace := r.plan.Credentials.Namespace
	ordered, err := sequence.Sort(seqs, namespace, knownActions(packages, namespace), d.feedback.Warn)
	if err != nil {
		return []response.Response{response.WrapError(err, "sequences")}
	}

	out := make([]response.Response, 0, len(ordered))
	for _, seq := range ordered {
		ref := seq.Source.(project.SequenceRef)
		exec := &whisk.Exec{Kind: "sequence", Components: sequence.Components(ref, namespace)}
		out = append(out, d.deployActionExec(ctx, r, seq, exec, "", isCleanPackage(r.plan, seq.Package)))
	}
	return out
}

// isCleanPackage reports whether the named package is being cleaned, which
// is always the case when the whole namespace is.
func isCleanPackage(plan *project.Plan, name string) bool {
	if plan.CleanNamespace {
		return true
	}
	for _, pkg := range plan.Packages {
		if pkg.Name == name {
			return pkg.Clean
		}
	}
	return false
}
