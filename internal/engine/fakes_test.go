package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/artpar/fndeploy/internal/core/response"
	coreruntimes "github.com/artpar/fndeploy/internal/core/runtimes"
	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

// =============================================================================
// Fake Platform
// =============================================================================

type platformEvent struct {
	kind string // "start" or "end"
	name string
}

type fakePlatform struct {
	mu sync.Mutex

	packages    map[string]*whisk.Package
	actions     map[string]*whisk.Action
	activations map[string]*whisk.Activation

	updateDelay time.Duration
	failUpdate  map[string]error

	packageUpdates []string
	actionUpdates  []string
	actionGets     []string
	packageGets    []string
	deletedActions []string
	deletedPkgs    []string
	activationGets int

	inflight    int
	maxInflight int
	events      []platformEvent
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		packages:    map[string]*whisk.Package{},
		actions:     map[string]*whisk.Action{},
		activations: map[string]*whisk.Activation{},
		failUpdate:  map[string]error{},
	}
}

func notFound(op string) error {
	return &whisk.APIError{Op: op, Status: 404, Message: "not found"}
}

func (f *fakePlatform) GetPackage(_ context.Context, name string) (*whisk.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packageGets = append(f.packageGets, name)
	pkg, ok := f.packages[name]
	if !ok {
		return nil, notFound("get package")
	}
	cp := *pkg
	cp.Actions = nil
	prefix := name + "/"
	for k := range f.actions {
		if strings.HasPrefix(k, prefix) {
			cp.Actions = append(cp.Actions, whisk.EntityRef{Name: strings.TrimPrefix(k, prefix)})
		}
	}
	return &cp, nil
}

func (f *fakePlatform) UpdatePackage(_ context.Context, name string, pkg whisk.Package) (*whisk.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packageUpdates = append(f.packageUpdates, name)
	if err := f.failUpdate[name]; err != nil {
		return nil, err
	}
	pkg.Name = name
	pkg.Namespace = "ns1"
	pkg.Version = fmt.Sprintf("0.0.%d", len(f.packageUpdates))
	f.packages[name] = &pkg
	return &pkg, nil
}

func (f *fakePlatform) DeletePackage(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.packages[name]; !ok {
		return notFound("delete package")
	}
	delete(f.packages, name)
	f.deletedPkgs = append(f.deletedPkgs, name)
	return nil
}

func (f *fakePlatform) ListPackages(_ context.Context) ([]whisk.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []whisk.Package
	for _, p := range f.packages {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePlatform) GetAction(_ context.Context, name string) (*whisk.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actionGets = append(f.actionGets, name)
	a, ok := f.actions[name]
	if !ok {
		return nil, notFound("get action")
	}
	cp := *a
	return &cp, nil
}

func (f *fakePlatform) UpdateAction(_ context.Context, name string, action whisk.Action) (*whisk.Action, error) {
	f.mu.Lock()
	f.inflight++
	f.maxInflight = max(f.maxInflight, f.inflight)
	f.events = append(f.events, platformEvent{"start", name})
	f.actionUpdates = append(f.actionUpdates, name)
	delay := f.updateDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	f.events = append(f.events, platformEvent{"end", name})
	if err := f.failUpdate[name]; err != nil {
		return nil, err
	}
	action.Name = name
	action.Namespace = "ns1"
	if pkg, _, ok := strings.Cut(name, "/"); ok {
		action.Namespace = "ns1/" + pkg
	}
	action.Version = fmt.Sprintf("0.0.%d", len(f.actionUpdates))
	f.actions[name] = &action
	return &action, nil
}

func (f *fakePlatform) DeleteAction(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.actions[name]; !ok {
		return notFound("delete action")
	}
	delete(f.actions, name)
	f.deletedActions = append(f.deletedActions, name)
	return nil
}

func (f *fakePlatform) ListActions(_ context.Context) ([]whisk.Action, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []whisk.Action
	for name, a := range f.actions {
		cp := *a
		cp.Namespace = "ns1"
		cp.Name = name
		if pkg, short, ok := strings.Cut(name, "/"); ok {
			cp.Namespace = "ns1/" + pkg
			cp.Name = short
		}
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakePlatform) GetActivation(_ context.Context, id string) (*whisk.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activationGets++
	act, ok := f.activations[id]
	if !ok {
		return nil, notFound("get activation")
	}
	return act, nil
}

func (f *fakePlatform) updatesOf(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.actionUpdates {
		if u == name {
			n++
		}
	}
	return n
}

func (f *fakePlatform) annotation(name, key string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[name]
	if !ok {
		return nil
	}
	for _, kv := range a.Annotations {
		if kv.Key == key {
			return kv.Value
		}
	}
	return nil
}

// =============================================================================
// Other Fakes
// =============================================================================

type fakeReader struct {
	files map[string][]byte
}

func (r *fakeReader) ReadFileContents(_ context.Context, path string) ([]byte, error) {
	data, ok := r.files[path]
	if !ok {
		return nil, fmt.Errorf("read %s: file does not exist", path)
	}
	return data, nil
}

type fakeVersions struct {
	entries map[versions.Identity]versions.Entry
	loads   int
	err     error
}

func (v *fakeVersions) Load(_ context.Context, id versions.Identity) (versions.Entry, error) {
	v.loads++
	if v.err != nil {
		return versions.Entry{}, v.err
	}
	if e, ok := v.entries[id]; ok {
		return e, nil
	}
	return versions.NewEntry(), nil
}

func (v *fakeVersions) Save(_ context.Context, id versions.Identity, e versions.Entry) error {
	if v.entries == nil {
		v.entries = map[versions.Identity]versions.Entry{}
	}
	v.entries[id] = e
	return nil
}

type fakeTriggers struct {
	mu         sync.Mutex
	deployed   map[string][]string // function -> trigger names
	undeployed []string
	deployErr  error
}

func newFakeTriggers() *fakeTriggers {
	return &fakeTriggers{deployed: map[string][]string{}}
}

func (t *fakeTriggers) Deploy(_ context.Context, triggers []project.Trigger, function, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deployErr != nil {
		return t.deployErr
	}
	for _, tr := range triggers {
		t.deployed[function] = append(t.deployed[function], tr.Name)
	}
	return nil
}

func (t *fakeTriggers) Undeploy(_ context.Context, names []string, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.undeployed = append(t.undeployed, names...)
	return nil
}

func (t *fakeTriggers) List(_ context.Context, _, function string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if function != "" {
		return append([]string(nil), t.deployed[function]...), nil
	}
	var all []string
	for _, names := range t.deployed {
		all = append(all, names...)
	}
	return all, nil
}

type fakeFeedback struct {
	mu       sync.Mutex
	progress []string
	warnings []string
}

func (f *fakeFeedback) Progress(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, fmt.Sprintf(format, args...))
}

func (f *fakeFeedback) Warn(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings = append(f.warnings, fmt.Sprintf(format, args...))
}

type fakeCatalog struct {
	config coreruntimes.Config
}

func (c *fakeCatalog) Runtimes(context.Context, string) (coreruntimes.Config, error) {
	return c.config, nil
}

type fakeBucket struct {
	mu       sync.Mutex
	uploaded map[string]string
	cleaned  int
	warning  string
}

func (b *fakeBucket) Deploy(_ context.Context, res project.WebResource, body []byte) response.Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploaded == nil {
		b.uploaded = map[string]string{}
	}
	b.uploaded[res.SimpleName] = string(body)
	return response.WrapSuccess(res.SimpleName, response.KindWeb, false, "", nil, "")
}

func (b *fakeBucket) Clean(context.Context) (string, error) {
	b.cleaned++
	return b.warning, nil
}

type fakeLocal struct {
	mu      sync.Mutex
	ensured string
	copied  []string
	cleaned []string
}

func (l *fakeLocal) Ensure(dir string) (string, error) {
	l.ensured = dir
	return "/abs/" + dir, nil
}

func (l *fakeLocal) Deploy(_ context.Context, res project.WebResource, dir string) response.Response {
	l.mu.Lock()
	defer l.mu.Unlock()
	dest := dir + "/" + res.SimpleName
	l.copied = append(l.copied, dest)
	return response.WrapSuccess(dest, response.KindWeb, false, "", nil, "")
}

func (l *fakeLocal) Clean(dir string) error {
	l.cleaned = append(l.cleaned, dir)
	return nil
}

// =============================================================================
// Builders
// =============================================================================

type harness struct {
	platform *fakePlatform
	reader   *fakeReader
	versions *fakeVersions
	triggers *fakeTriggers
	feedback *fakeFeedback
	deployer *Deployer
}

func newHarness(cfg Config, opts ...func(*Deps)) *harness {
	h := &harness{
		platform: newFakePlatform(),
		reader:   &fakeReader{files: map[string][]byte{}},
		versions: &fakeVersions{},
		triggers: newFakeTriggers(),
		feedback: &fakeFeedback{},
	}
	deps := Deps{
		Platform: h.platform,
		Versions: h.versions,
		Reader:   h.reader,
		Feedback: h.feedback,
		Triggers: h.triggers,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.deployer = New(deps, cfg, nil)
	return h
}

func newPlan(packages ...project.Package) *project.Plan {
	return &project.Plan{
		ProjectPath: "/proj",
		Credentials: project.Credentials{Namespace: "ns1", APIHost: "https://host"},
		Includer:    project.IncludeEverything(),
		Packages:    packages,
		Deployer:    project.Deployer{Repository: "github.com/acme/app", User: "dev"},
	}
}

func defaultPkg(actions ...project.Action) project.Package {
	for i := range actions {
		actions[i].Package = project.DefaultPackage
	}
	return project.Package{Name: project.DefaultPackage, Actions: actions}
}

func pkgOf(name string, actions ...project.Action) project.Package {
	for i := range actions {
		actions[i].Package = name
	}
	return project.Package{Name: name, Actions: actions}
}

func codeAction(name, code string) project.Action {
	return project.Action{Name: name, Source: project.InlineCode{Code: code}, Runtime: "nodejs:18"}
}

func seqAction(name string, components ...string) project.Action {
	return project.Action{Name: name, Source: project.SequenceRef{Components: components}}
}

func successNames(r response.Response) []string {
	var out []string
	for _, s := range r.Successes {
		out = append(out, s.Name)
	}
	return out
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
