package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/fndeploy/internal/core/annotations"
	"github.com/artpar/fndeploy/internal/core/digest"
	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	coreruntimes "github.com/artpar/fndeploy/internal/core/runtimes"
	"github.com/artpar/fndeploy/internal/core/sequence"
	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// =============================================================================
// Batching Tests
// =============================================================================

func TestDeployInBatches_BoundsInFlight(t *testing.T) {
	var mu sync.Mutex
	var inflight, peak int

	units := make([]int, 12)
	for i := range units {
		units[i] = i
	}
	results := deployInBatches(context.Background(), 5, units, func(_ context.Context, n int) response.Response {
		mu.Lock()
		inflight++
		peak = max(peak, inflight)
		mu.Unlock()

		time.Sleep(2 * time.Millisecond)

		mu.Lock()
		inflight--
		mu.Unlock()
		return response.WrapSuccess(fmt.Sprintf("u%d", n), response.KindAction, false, "", nil, "")
	})

	require.Len(t, results, 12)
	assert.LessOrEqual(t, peak, 5)
	for i, r := range results {
		assert.Equal(t, fmt.Sprintf("u%d", i), r.Successes[0].Name, "results keep input order")
	}
}

func TestDeployInBatches_Empty(t *testing.T) {
	results := deployInBatches(context.Background(), 5, []int(nil), func(context.Context, int) response.Response {
		t.Fatal("deploy must not be called")
		return response.Empty()
	})
	assert.Empty(t, results)
}

func TestDeploy_ThirtyActionsTwoBatches(t *testing.T) {
	h := newHarness(Config{ChunkSize: 25})
	h.platform.updateDelay = 5 * time.Millisecond

	var actions []project.Action
	for i := range 30 {
		actions = append(actions, codeAction(fmt.Sprintf("a%02d", i), "code"))
	}
	plan := newPlan(defaultPkg(actions...))

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Empty(t, resp.Failures)
	assert.Len(t, resp.Successes, 30)
	assert.Len(t, resp.ActionVersions, 30)
	assert.LessOrEqual(t, h.platform.maxInflight, 25)

	lastFirstBatchEnd, firstSecondBatchStart := -1, len(h.platform.events)
	for i, ev := range h.platform.events {
		var n int
		fmt.Sscanf(ev.name, "a%d", &n)
		if n < 25 && ev.kind == "end" {
			lastFirstBatchEnd = i
		}
		if n >= 25 && ev.kind == "start" && i < firstSecondBatchStart {
			firstSecondBatchStart = i
		}
	}
	assert.Less(t, lastFirstBatchEnd, firstSecondBatchStart, "second batch starts after the first one finished")
}

// =============================================================================
// Incremental Tests
// =============================================================================

func TestDeploy_IncrementalSkipsUnchangedAction(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "code")))
	plan.Flags.Incremental = true

	sum := digest.Action(plan.Packages[0].Actions[0], "code")
	entry := versions.NewEntry()
	entry.ActionVersions["hello"] = versions.Info{Version: "0.0.7", Digest: sum}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): entry}

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, resp.Successes, 1)
	assert.True(t, resp.Successes[0].Skipped)
	assert.Equal(t, "0.0.7", resp.ActionVersions["hello"].Version)
	assert.Empty(t, h.platform.actionUpdates)
	assert.Equal(t, 1, h.versions.loads)
}

func TestDeploy_IncrementalRedeploysChangedAction(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "new code")))
	plan.Flags.Incremental = true

	entry := versions.NewEntry()
	entry.ActionVersions["hello"] = versions.Info{Version: "0.0.7", Digest: "stale"}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): entry}

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, resp.Successes, 1)
	assert.False(t, resp.Successes[0].Skipped)
	assert.Equal(t, 1, h.platform.updatesOf("hello"))
	assert.Equal(t, digest.Action(plan.Packages[0].Actions[0], "new code"), resp.ActionVersions["hello"].Digest)
}

func TestDeploy_IncrementalSkipsUnchangedPackage(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(pkgOf("admin"))
	plan.Flags.Incremental = true

	sum := digest.Package(plan.Packages[0], nil, nil)
	entry := versions.NewEntry()
	entry.PackageVersions["admin"] = versions.Info{Version: "0.0.3", Digest: sum}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): entry}

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Empty(t, h.platform.packageUpdates)
	assert.Equal(t, versions.Info{Version: "0.0.3", Digest: sum}, resp.PackageVersions["admin"])
}

func TestDeploy_FullDeployIgnoresStoredDigests(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "code")))
	store := versions.NewStore(versions.Entry{
		ActionVersions: map[string]versions.Info{"hello": {Version: "1", Digest: digest.Action(plan.Packages[0].Actions[0], "code")}},
	})

	resp := h.deployer.Deploy(context.Background(), plan, store)

	assert.False(t, resp.Successes[0].Skipped)
	assert.Equal(t, 1, h.platform.updatesOf("hello"))
}

// =============================================================================
// Package Tests
// =============================================================================

func TestDeploy_DefaultPackageWithParametersFails(t *testing.T) {
	h := newHarness(Config{})
	def := defaultPkg(codeAction("hello", "code"))
	def.Parameters = map[string]any{"k": "v"}
	plan := newPlan(def, pkgOf("admin", codeAction("tool", "code")))

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "package 'default'", resp.Failures[0].Context)
	assert.ErrorIs(t, resp.Failures[0].Err, project.ErrDefaultPackageParams)
	assert.Equal(t, []string{"admin"}, h.platform.packageUpdates)
	assert.Equal(t, []string{"admin/tool"}, successNames(resp))
	assert.Zero(t, h.platform.updatesOf("hello"))
}

func TestDeploy_PackageRecord(t *testing.T) {
	h := newHarness(Config{})
	pkg := pkgOf("admin")
	pkg.Shared = true
	pkg.Parameters = map[string]any{"p": 1}
	pkg.Environment = map[string]any{"E": "x"}
	plan := newPlan(pkg)
	plan.Parameters = map[string]any{"p": 0, "q": 2}

	resp, _, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Empty(t, resp.Failures)
	assert.Empty(t, resp.Successes, "package records report versions only")
	remote := h.platform.packages["admin"]
	require.NotNil(t, remote)
	assert.True(t, remote.Publish)
	assert.Equal(t, []whisk.KeyValue{
		{Key: "p", Value: 1},
		{Key: "q", Value: 2},
		{Key: "E", Value: "x", Init: true},
	}, remote.Parameters)

	sum := digest.Package(pkg, map[string]any{"p": 1, "q": 2}, map[string]any{"E": "x"})
	assert.Equal(t, versions.Info{Version: remote.Version, Digest: sum}, resp.PackageVersions["admin"])
	assert.Equal(t, "ns1", resp.Namespace)
}

func TestDeploy_PackageMergesFormerAnnotations(t *testing.T) {
	h := newHarness(Config{})
	h.platform.packages["admin"] = &whisk.Package{Name: "admin", Annotations: []whisk.KeyValue{
		{Key: "owner", Value: "ops"},
		{Key: "deployerAnnot", Value: "legacy"},
	}}
	plan := newPlan(pkgOf("admin"))

	resp := h.deployer.Deploy(context.Background(), plan, nil)
	require.Empty(t, resp.Failures)

	got := annotations.ToMap(h.platform.packages["admin"].Annotations)
	assert.Equal(t, "ops", got["owner"])
	assert.NotContains(t, got, "deployerAnnot")
	deployer, ok := got[annotations.KeyDeployer].(project.Deployer)
	require.True(t, ok)
	assert.Len(t, deployer.Digest, annotations.DigestPrefixLen)
	assert.Equal(t, "github.com/acme/app", deployer.Repository)
}

func TestDeploy_CleanPackageDoesNotFetchFormerAnnotations(t *testing.T) {
	h := newHarness(Config{})
	pkg := pkgOf("admin", codeAction("tool", "code"))
	pkg.Clean = true
	plan := newPlan(pkg)

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Empty(t, h.platform.packageGets)
	assert.Empty(t, h.platform.actionGets, "actions of a clean package start fresh")
}

// =============================================================================
// Action Tests
// =============================================================================

func TestDeploy_ActionAnnotationsAndParameters(t *testing.T) {
	h := newHarness(Config{})
	h.platform.actions["hello"] = &whisk.Action{Name: "hello", Annotations: []whisk.KeyValue{
		{Key: "owner", Value: "ops"},
		{Key: "final", Value: false},
	}}

	action := codeAction("hello", "code")
	action.Web = project.WebRaw
	action.WebSecure = "secret"
	action.Annotations = map[string]any{"team": "core"}
	action.Parameters = map[string]any{"p": 1}
	action.Environment = map[string]any{"TOKEN": "t"}
	action.Limits = project.Limits{Timeout: 3000, Memory: 256}
	plan := newPlan(defaultPkg(action))

	resp := h.deployer.Deploy(context.Background(), plan, nil)
	require.Empty(t, resp.Failures)

	assert.Equal(t, true, h.platform.annotation("hello", annotations.KeyWebExport))
	assert.Equal(t, true, h.platform.annotation("hello", annotations.KeyRawHTTP))
	assert.Equal(t, "secret", h.platform.annotation("hello", annotations.KeyRequireAuth))
	assert.Equal(t, true, h.platform.annotation("hello", annotations.KeyFinal))
	assert.Equal(t, "ops", h.platform.annotation("hello", "owner"))
	assert.Equal(t, "core", h.platform.annotation("hello", "team"))

	remote := h.platform.actions["hello"]
	assert.Equal(t, []whisk.KeyValue{
		{Key: "p", Value: 1},
		{Key: "TOKEN", Value: "t", Init: true},
	}, remote.Parameters)
	require.NotNil(t, remote.Limits)
	assert.Equal(t, 3000, remote.Limits.Timeout)
	assert.Equal(t, 256, remote.Limits.Memory)
	assert.Equal(t, "nodejs:18", remote.Exec.Kind)
	assert.Equal(t, "code", *remote.Exec.Code)
}

func TestDeploy_CleanActionDoesNotFetchFormerAnnotations(t *testing.T) {
	h := newHarness(Config{})
	action := codeAction("hello", "code")
	action.Clean = true

	resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

	require.Empty(t, resp.Failures)
	assert.Empty(t, h.platform.actionGets)
}

func TestDeploy_PackagedActionReportsNamespace(t *testing.T) {
	h := newHarness(Config{})
	resp := h.deployer.Deploy(context.Background(), newPlan(pkgOf("admin", codeAction("tool", "code"))), nil)

	require.Len(t, resp.Successes, 1)
	assert.Equal(t, "admin/tool", resp.Successes[0].Name)
	assert.Equal(t, "ns1", resp.Successes[0].Namespace)
	assert.Equal(t, "https://host", resp.APIHost)
}

func TestDeploy_ActionSources(t *testing.T) {
	tests := []struct {
		name    string
		action  project.Action
		files   map[string][]byte
		wantErr string
		check   func(t *testing.T, remote *whisk.Action)
	}{
		{
			name:    "missing content",
			action:  project.Action{Name: "hello"},
			wantErr: ErrMissingContent.Error(),
		},
		{
			name:    "remote build error",
			action:  project.Action{Name: "hello", Source: project.RemoteBuildError{Message: "npm install failed"}},
			wantErr: "npm install failed",
		},
		{
			name:    "no runtime",
			action:  project.Action{Name: "hello", Source: project.InlineCode{Code: "code"}},
			wantErr: "Action 'hello' not deployed: runtime type could not be determined",
		},
		{
			name:    "unreadable file",
			action:  project.Action{Name: "hello", Source: project.SourceFile{Path: "/proj/missing.js"}},
			wantErr: "file does not exist",
		},
		{
			name:   "runtime inferred from extension",
			action: project.Action{Name: "hello", Source: project.SourceFile{Path: "/proj/hello.py"}},
			files:  map[string][]byte{"/proj/hello.py": []byte("def main(args): return args")},
			check: func(t *testing.T, remote *whisk.Action) {
				assert.Equal(t, "python:default", remote.Exec.Kind)
				assert.False(t, remote.Exec.Binary)
				assert.Equal(t, "def main(args): return args", *remote.Exec.Code)
			},
		},
		{
			name:   "binary file is base64 encoded",
			action: project.Action{Name: "hello", Runtime: "nodejs:18", Source: project.SourceFile{Path: "/proj/hello.zip"}},
			files:  map[string][]byte{"/proj/hello.zip": {0x50, 0x4b, 0x03, 0x04}},
			check: func(t *testing.T, remote *whisk.Action) {
				assert.True(t, remote.Exec.Binary)
				assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x50, 0x4b, 0x03, 0x04}), *remote.Exec.Code)
			},
		},
		{
			name:   "docker image",
			action: project.Action{Name: "hello", Docker: "acme/runner:1", Source: project.InlineCode{}},
			check: func(t *testing.T, remote *whisk.Action) {
				assert.Equal(t, "blackbox", remote.Exec.Kind)
				assert.Equal(t, "acme/runner:1", remote.Exec.Image)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(Config{})
			for k, v := range tt.files {
				h.reader.files[k] = v
			}
			resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(tt.action)), nil)

			if tt.wantErr != "" {
				require.Len(t, resp.Failures, 1)
				assert.Equal(t, "action 'hello'", resp.Failures[0].Context)
				assert.Contains(t, resp.Failures[0].Err.Error(), tt.wantErr)
				assert.Empty(t, h.platform.actionUpdates)
				return
			}
			require.Empty(t, resp.Failures)
			require.Contains(t, h.platform.actions, "hello")
			tt.check(t, h.platform.actions["hello"])
		})
	}
}

func TestDeploy_MissingContentFailsOnlyThatAction(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(project.Action{Name: "ghost"}, codeAction("hello", "code")))

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.ErrorIs(t, resp.Failures[0].Err, ErrMissingContent)
	assert.Equal(t, []string{"hello"}, successNames(resp))
}

// =============================================================================
// Runtime Tests
// =============================================================================

func TestDeploy_RuntimeCatalog(t *testing.T) {
	catalog := &fakeCatalog{config: coreruntimes.Config{
		"nodejs": {{Kind: "nodejs:16"}, {Kind: "nodejs:18", Default: true}},
		"python": {{Kind: "python:3.11", Default: true}},
	}}
	withCatalog := func(d *Deps) { d.Runtimes = catalog }

	t.Run("default resolves", func(t *testing.T) {
		h := newHarness(Config{}, withCatalog)
		action := codeAction("hello", "code")
		action.Runtime = "nodejs:default"

		resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

		require.Empty(t, resp.Failures)
		assert.Equal(t, "nodejs:18", h.platform.actions["hello"].Exec.Kind)
	})

	t.Run("unknown kind fails", func(t *testing.T) {
		h := newHarness(Config{}, withCatalog)
		action := codeAction("hello", "code")
		action.Runtime = "cobol:1"

		resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

		require.Len(t, resp.Failures, 1)
		assert.ErrorIs(t, resp.Failures[0].Err, coreruntimes.ErrUnknownRuntime)
	})

	t.Run("zip name selects runtime", func(t *testing.T) {
		h := newHarness(Config{}, withCatalog)
		h.reader.files["/proj/hello.python-3.11.zip"] = []byte("PK")
		action := project.Action{Name: "hello", Source: project.SourceFile{Path: "/proj/hello.python-3.11.zip"}}

		resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

		require.Empty(t, resp.Failures)
		exec := h.platform.actions["hello"].Exec
		assert.Equal(t, "python:3.11", exec.Kind)
		assert.True(t, exec.Binary)
	})
}

// =============================================================================
// Trigger Tests
// =============================================================================

func TestDeploy_TriggersDeployedWithAction(t *testing.T) {
	h := newHarness(Config{})
	action := codeAction("hello", "code")
	action.Triggers = []project.Trigger{{Name: "nightly", SourceType: project.SourceTypeScheduler, Cron: "0 0 * * *", Enabled: true}}

	resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, []string{"nightly"}, h.triggers.deployed["hello"])
}

func TestDeploy_TriggerFailureKeepsAction(t *testing.T) {
	h := newHarness(Config{})
	h.triggers.deployErr = errors.New("scheduler unavailable")
	action := codeAction("hello", "code")
	action.Triggers = []project.Trigger{{Name: "nightly", SourceType: project.SourceTypeScheduler, Cron: "0 0 * * *"}}

	resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(action)), nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "action 'hello'", resp.Failures[0].Context)
	assert.Contains(t, h.platform.actions, "hello")
	assert.Empty(t, resp.ActionVersions)
}

// =============================================================================
// Sequence Tests
// =============================================================================

func TestDeploy_SequencesAfterActionsInDependencyOrder(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(
		seqAction("A", "B"),
		seqAction("B", "C"),
		seqAction("C", "base"),
		codeAction("base", "code"),
	))

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, []string{"base", "C", "B", "A"}, h.platform.actionUpdates)
	assert.Equal(t, []string{"/ns1/B"}, h.platform.actions["A"].Exec.Components)
	assert.Equal(t, "sequence", h.platform.actions["A"].Exec.Kind)
	assert.ElementsMatch(t, []string{"base", "A", "B", "C"}, successNames(resp))
	assert.NotContains(t, resp.ActionVersions, "A", "sequences are not versioned")
}

func TestDeploy_SequenceDiamond(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(
		seqAction("A", "B", "C"),
		seqAction("B", "C"),
		seqAction("C"),
	))

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, []string{"C", "B", "A"}, h.platform.actionUpdates)
	assert.Equal(t, []string{"/ns1/B", "/ns1/C"}, h.platform.actions["A"].Exec.Components)
}

func TestDeploy_SequenceCycleFailsPhase(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(
		seqAction("A", "B"),
		seqAction("B", "A"),
		codeAction("base", "code"),
	))

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "sequences", resp.Failures[0].Context)
	assert.ErrorIs(t, resp.Failures[0].Err, sequence.ErrCycle)
	assert.Equal(t, []string{"base"}, h.platform.actionUpdates)
}

func TestDeploy_SequenceWithCodeAttributesFails(t *testing.T) {
	h := newHarness(Config{})
	bad := seqAction("A", "base")
	bad.Runtime = "nodejs:18"

	resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(bad, codeAction("base", "code"))), nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "action 'A'", resp.Failures[0].Context)
	assert.Equal(t, []string{"base"}, h.platform.actionUpdates)
}

func TestDeploy_DanglingSequenceMemberWarns(t *testing.T) {
	h := newHarness(Config{})
	resp := h.deployer.Deploy(context.Background(), newPlan(defaultPkg(seqAction("A", "nowhere"))), nil)

	require.Empty(t, resp.Failures)
	require.NotEmpty(t, h.feedback.warnings)
	assert.Contains(t, strings.Join(h.feedback.warnings, "\n"), "/ns1/nowhere")
}

// =============================================================================
// Web Tests
// =============================================================================

var indexPage = project.WebResource{FilePath: "/proj/web/index.html", SimpleName: "index.html", MimeType: "text/html"}

func TestDeploy_WebToBucket(t *testing.T) {
	bucket := &fakeBucket{}
	h := newHarness(Config{}, func(d *Deps) { d.Bucket = bucket })
	h.reader.files[indexPage.FilePath] = []byte("<h1>hi</h1>")
	plan := newPlan()
	plan.Bucket = &project.BucketSpec{}
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, "<h1>hi</h1>", bucket.uploaded["index.html"])
	require.Len(t, resp.Successes, 1)
	assert.Equal(t, response.KindWeb, resp.Successes[0].Kind)
}

func TestDeploy_WebToLocalDirectory(t *testing.T) {
	local := &fakeLocal{}
	h := newHarness(Config{}, func(d *Deps) { d.Local = local })
	plan := newPlan()
	plan.Flags.WebLocal = "out"
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, "out", local.ensured)
	assert.Equal(t, []string{"/abs/out/index.html"}, local.copied)
}

func TestDeploy_WebWithoutTargetFails(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan()
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "web resources", resp.Failures[0].Context)
	assert.Contains(t, resp.Failures[0].Err.Error(), "index.html")
}

func TestDeploy_WebBuildErrorReported(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan()
	plan.WebBuildError = "npm run build exited 1"
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "web content", resp.Failures[0].Context)
	assert.EqualError(t, resp.Failures[0].Err, "npm run build exited 1")
}

func TestDeploy_WebActionWrap(t *testing.T) {
	h := newHarness(Config{})
	h.reader.files[indexPage.FilePath] = []byte("<h1>hi</h1>")
	plan := newPlan(defaultPkg(codeAction("hello", "code")))
	plan.ActionWrapPackage = "site"
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Empty(t, resp.Failures)
	assert.Equal(t, []string{"site"}, h.platform.packageUpdates)
	require.Contains(t, h.platform.actions, "site/index")
	assert.Equal(t, true, h.platform.annotation("site/index", annotations.KeyWebExport))

	var wrapped *response.Success
	for i := range resp.Successes {
		if resp.Successes[i].Name == "site/index" {
			wrapped = &resp.Successes[i]
		}
	}
	require.NotNil(t, wrapped)
	assert.Equal(t, indexPage.FilePath, wrapped.Wrapping)
	assert.Len(t, plan.Packages, 1, "the plan itself is not modified")
}

func TestDeploy_WebActionWrapUnreadableResource(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan()
	plan.ActionWrapPackage = "site"
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "web resource 'index.html'", resp.Failures[0].Context)
}

func TestDeploy_StraysReportedAsIgnored(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan()
	plan.Strays = []string{"notes.txt"}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	assert.Equal(t, []string{"notes.txt"}, resp.Ignored)
	assert.Equal(t, "ns1", resp.Namespace)
}

func TestDeploy_WebLocalWithoutPublisherFails(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "code")))
	plan.Flags.WebLocal = "out"
	plan.Web = []project.WebResource{indexPage}

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "web content", resp.Failures[0].Context)
	assert.ErrorIs(t, resp.Failures[0].Err, ErrNoLocalPublisher)
	assert.Contains(t, resp.Failures[0].Err.Error(), "'out'")
	assert.Equal(t, []string{"hello"}, successNames(resp))
}

func TestDeploy_WebLocalWithoutPublisherNoWebIsQuiet(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "code")))
	plan.Flags.WebLocal = "out"

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	assert.Empty(t, resp.Failures)
}

// =============================================================================
// Failure Isolation Tests
// =============================================================================

func TestDeploy_PackageUpdateFailureDoesNotAbort(t *testing.T) {
	h := newHarness(Config{})
	h.platform.failUpdate["admin"] = errors.New("boom")
	plan := newPlan(
		pkgOf("admin", codeAction("a", "x")),
		pkgOf("other", codeAction("b", "y")),
	)

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "package 'admin'", resp.Failures[0].Context)
	assert.EqualError(t, resp.Failures[0].Err, "boom")
	assert.ElementsMatch(t, []string{"admin/a", "other/b"}, successNames(resp))
	assert.NotContains(t, resp.PackageVersions, "admin")
	assert.Contains(t, resp.PackageVersions, "other")
}

func TestDeploy_ActionUpdateFailureIsolated(t *testing.T) {
	h := newHarness(Config{})
	h.platform.failUpdate["admin/a"] = errors.New("boom")
	plan := newPlan(
		pkgOf("admin", codeAction("a", "x"), codeAction("c", "z")),
		pkgOf("other", codeAction("b", "y")),
	)

	resp := h.deployer.Deploy(context.Background(), plan, nil)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, "action 'admin/a'", resp.Failures[0].Context)
	assert.EqualError(t, resp.Failures[0].Err, "boom")
	assert.ElementsMatch(t, []string{"admin/c", "other/b"}, successNames(resp))
	assert.NotContains(t, resp.ActionVersions, "admin/a")
	assert.Contains(t, resp.ActionVersions, "admin/c")
	assert.Contains(t, resp.PackageVersions, "admin")
}

// =============================================================================
// Persisted Version Tests
// =============================================================================

func TestRun_IncrementalKeepsVersionsOutsideRun(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(
		pkgOf("admin", codeAction("a", "new")),
		pkgOf("other", codeAction("b", "y")),
	)
	plan.Flags.Incremental = true

	stored := versions.NewEntry()
	stored.ActionVersions["admin/a"] = versions.Info{Version: "0.0.1", Digest: "stale"}
	stored.ActionVersions["other/b"] = versions.Info{Version: "0.0.4", Digest: "b-sum"}
	stored.PackageVersions["admin"] = versions.Info{Version: "0.0.2", Digest: "stale"}
	stored.PackageVersions["other"] = versions.Info{Version: "0.0.5", Digest: "other-sum"}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): stored}

	project.ApplyIncluder(plan, project.NewIncluder([]string{"admin"}, nil))
	_, entry, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, []string{"admin/a"}, h.platform.actionUpdates)
	assert.Equal(t, versions.Info{Version: "0.0.4", Digest: "b-sum"}, entry.ActionVersions["other/b"])
	assert.Equal(t, versions.Info{Version: "0.0.5", Digest: "other-sum"}, entry.PackageVersions["other"])
	assert.Equal(t, digest.Action(plan.Packages[0].Actions[0], "new"), entry.ActionVersions["admin/a"].Digest)
	assert.NotEqual(t, "stale", entry.PackageVersions["admin"].Digest)
}

func TestRun_FailedUpdateKeepsPreviousVersion(t *testing.T) {
	h := newHarness(Config{})
	h.platform.failUpdate["admin/a"] = errors.New("boom")
	plan := newPlan(pkgOf("admin", codeAction("a", "new")))
	plan.Flags.Incremental = true

	stored := versions.NewEntry()
	stored.ActionVersions["admin/a"] = versions.Info{Version: "0.0.1", Digest: "stale"}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): stored}

	resp, entry, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, resp.Failures, 1)
	assert.Equal(t, versions.Info{Version: "0.0.1", Digest: "stale"}, entry.ActionVersions["admin/a"])
}

func TestRun_FullDeployPersistsOnlyThisRun(t *testing.T) {
	h := newHarness(Config{})
	plan := newPlan(defaultPkg(codeAction("hello", "code")))

	stored := versions.NewEntry()
	stored.ActionVersions["gone"] = versions.Info{Version: "0.0.1", Digest: "d"}
	h.versions.entries = map[versions.Identity]versions.Entry{Identity(plan): stored}

	_, entry, err := h.deployer.Run(context.Background(), plan)
	require.NoError(t, err)

	assert.NotContains(t, entry.ActionVersions, "gone")
	assert.Contains(t, entry.ActionVersions, "hello")
}
