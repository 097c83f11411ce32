package project

// DefaultPackage is the pseudo-package holding actions that live directly in
// the namespace. It is never deployed as an object.
const DefaultPackage = "default"

// =============================================================================
// Plan
// =============================================================================

// Plan is everything one run deploys. It is built upstream, validated, and
// then handed to the engine read-mostly.
type Plan struct {
	ProjectPath string
	Credentials Credentials
	Flags       Flags

	// CleanNamespace wipes (or selectively cleans) the namespace before deploying.
	CleanNamespace bool
	Includer       Includer

	// Project-level parameters and environment are merged under each package's own.
	Parameters  map[string]any
	Environment map[string]any

	Packages []Package
	Web      []WebResource

	// At most one web target strategy applies: action wrapping, a bucket, or
	// a local directory (Flags.WebLocal).
	Bucket            *BucketSpec
	ActionWrapPackage string

	// Web content built remotely replaces per-resource web deployment.
	WebBuildResult string
	WebBuildError  string

	Deployer Deployer
	Strays   []string
}

// Credentials identify the target namespace.
type Credentials struct {
	Namespace string
	APIHost   string
	Auth      string
}

// Flags are run-mode switches.
type Flags struct {
	Incremental bool
	WebLocal    string
}

// Deployer is the tool-owned annotation attached to every deployed object.
type Deployer struct {
	Repository  string `json:"repository,omitempty" yaml:"repository"`
	Commit      string `json:"commit,omitempty" yaml:"commit"`
	User        string `json:"user,omitempty" yaml:"user"`
	ProjectPath string `json:"projectPath,omitempty" yaml:"projectPath"`
	Digest      string `json:"digest,omitempty" yaml:"-"`
	Zipped      bool   `json:"zipped,omitempty" yaml:"-"`
}

// BucketSpec configures deployment of web content to a storage bucket.
type BucketSpec struct {
	Clean        bool
	PrefixPath   string
	MainPage     string
	NotFoundPage string
}

// =============================================================================
// Packages and Actions
// =============================================================================

// Package groups actions and carries package-level settings.
type Package struct {
	Name        string
	Clean       bool
	Shared      bool
	Parameters  map[string]any
	Environment map[string]any
	Annotations map[string]any
	Actions     []Action
}

// IsDefault reports whether p is the default pseudo-package.
func (p Package) IsDefault() bool {
	return p.Name == DefaultPackage
}

// WebMode is how an action is exposed over HTTP.
type WebMode int

const (
	WebOff WebMode = iota
	WebStandard
	WebRaw
)

func (m WebMode) String() string {
	switch m {
	case WebStandard:
		return "true"
	case WebRaw:
		return "raw"
	default:
		return "false"
	}
}

// Limits are platform execution limits. Zero means platform default.
type Limits struct {
	Timeout     int `json:"timeout,omitempty" yaml:"timeout"`
	Memory      int `json:"memory,omitempty" yaml:"memory"`
	Logs        int `json:"logs,omitempty" yaml:"logs"`
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency"`
}

// IsZero reports whether no limit is set.
func (l Limits) IsZero() bool {
	return l == Limits{}
}

// Action is one deployable function.
type Action struct {
	Name string
	// Package is the name of the owning package.
	Package string
	Source  Source

	Runtime string
	Binary  bool
	Main    string
	Docker  string
	Zipped  bool

	Web WebMode
	// WebSecure is the required auth challenge; empty means no auth required.
	WebSecure string

	Limits      Limits
	Parameters  map[string]any
	Environment map[string]any
	Annotations map[string]any

	Clean    bool
	Triggers []Trigger

	// Wrapping is the web resource path this action was generated from, if any.
	Wrapping string
}

// QualifiedName is the name the platform knows the action by within the
// namespace: "pkg/name", or "name" in the default package.
func (a Action) QualifiedName() string {
	if a.Package == "" || a.Package == DefaultPackage {
		return a.Name
	}
	return a.Package + "/" + a.Name
}

// IsSequence reports whether the action is a sequence.
func (a Action) IsSequence() bool {
	_, ok := a.Source.(SequenceRef)
	return ok
}

// Trigger binds an action to an event source. Only the scheduler source is
// supported.
type Trigger struct {
	Name       string
	SourceType string
	Enabled    bool
	Cron       string
	WithBody   map[string]any
}

// SourceTypeScheduler is the only supported trigger source.
const SourceTypeScheduler = "scheduler"

// =============================================================================
// Web Resources
// =============================================================================

// WebResource is one static file to publish.
type WebResource struct {
	FilePath   string
	SimpleName string
	MimeType   string
}
