// Package response defines the per-unit deployment outcome and how outcomes
// are combined into the single report a run produces.
//
// Responses form a monoid under Combine: list fields concatenate and version
// maps merge with the right operand winning on overlapping keys. A run never
// rolls back; a partially failed run is reported, not undone.
package response

import (
	"encoding/json"
	"errors"

	"github.com/artpar/fndeploy/internal/core/versions"
)

// =============================================================================
// Types
// =============================================================================

// Kind names the type of a deployed unit.
type Kind string

const (
	KindAction  Kind = "action"
	KindPackage Kind = "package"
	KindWeb     Kind = "web"
)

// Success records a unit that reached a successful terminal state.
type Success struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	Skipped   bool   `json:"skipped,omitempty"`
	Wrapping  string `json:"wrapping,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// Failure records a unit that failed. Context names the unit (for example
// "action 'admin/hello'"); Activation carries a raw remote-build activation
// when one is available.
type Failure struct {
	Context    string
	Err        error
	Activation string
}

func (f Failure) Error() string {
	if f.Err == nil {
		return f.Context
	}
	return f.Context + ": " + f.Err.Error()
}

type failureJSON struct {
	Context    string `json:"context"`
	Error      string `json:"error"`
	Activation string `json:"activation,omitempty"`
}

// MarshalJSON renders the error as its message.
func (f Failure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(failureJSON{Context: f.Context, Error: msg, Activation: f.Activation})
}

// UnmarshalJSON restores a Failure whose error is known only by its message,
// as happens for outcomes produced by a remote build.
func (f *Failure) UnmarshalJSON(data []byte) error {
	var raw failureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	f.Context = raw.Context
	f.Activation = raw.Activation
	if raw.Error != "" {
		f.Err = errors.New(raw.Error)
	}
	return nil
}

// Response is the outcome of deploying zero or more units.
type Response struct {
	Successes       []Success                `json:"successes"`
	Failures        []Failure                `json:"failures"`
	Ignored         []string                 `json:"ignored"`
	ActionVersions  map[string]versions.Info `json:"actionVersions"`
	PackageVersions map[string]versions.Info `json:"packageVersions"`
	Namespace       string                   `json:"namespace,omitempty"`
	APIHost         string                   `json:"apihost,omitempty"`
}

// =============================================================================
// Constructors
// =============================================================================

// Empty returns a response with no entries.
func Empty() Response {
	return Response{
		Successes:       []Success{},
		Failures:        []Failure{},
		Ignored:         []string{},
		ActionVersions:  map[string]versions.Info{},
		PackageVersions: map[string]versions.Info{},
	}
}

// WrapError turns an error into a single-failure response.
func WrapError(err error, context string) Response {
	r := Empty()
	r.Failures = append(r.Failures, Failure{Context: context, Err: err})
	return r
}

// WrapSuccess turns a single successful unit into a response.
func WrapSuccess(name string, kind Kind, skipped bool, wrapping string, actionVersions map[string]versions.Info, namespace string) Response {
	r := Empty()
	r.Successes = append(r.Successes, Success{
		Name:      name,
		Kind:      kind,
		Skipped:   skipped,
		Wrapping:  wrapping,
		Namespace: namespace,
	})
	for k, v := range actionVersions {
		r.ActionVersions[k] = v
	}
	r.Namespace = namespace
	return r
}

// Strays reports entries excluded from the run as ignored.
func Strays(strays []string) Response {
	r := Empty()
	r.Ignored = append(r.Ignored, strays...)
	return r
}

// =============================================================================
// Combination
// =============================================================================

// Combine folds responses left to right.
func Combine(responses ...Response) Response {
	out := Empty()
	for _, r := range responses {
		out.Successes = append(out.Successes, r.Successes...)
		out.Failures = append(out.Failures, r.Failures...)
		out.Ignored = append(out.Ignored, r.Ignored...)
		for k, v := range r.ActionVersions {
			out.ActionVersions[k] = v
		}
		for k, v := range r.PackageVersions {
			out.PackageVersions[k] = v
		}
		if r.Namespace != "" {
			out.Namespace = r.Namespace
		}
		if r.APIHost != "" {
			out.APIHost = r.APIHost
		}
	}
	return out
}

// HasFailures reports whether any unit failed.
func (r Response) HasFailures() bool {
	return len(r.Failures) > 0
}

// Versions returns the version maps of the response.
func (r Response) Versions() versions.Entry {
	return r.VersionsOver(versions.NewEntry())
}

// VersionsOver returns the entry to persist after a run: base, the versions
// the run started from, with the response's maps laid on top. Units outside
// the run or whose deployment failed keep their base entry.
func (r Response) VersionsOver(base versions.Entry) versions.Entry {
	e := versions.NewEntry()
	for k, v := range base.ActionVersions {
		e.ActionVersions[k] = v
	}
	for k, v := range base.PackageVersions {
		e.PackageVersions[k] = v
	}
	for k, v := range r.ActionVersions {
		e.ActionVersions[k] = v
	}
	for k, v := range r.PackageVersions {
		e.PackageVersions[k] = v
	}
	return e
}
