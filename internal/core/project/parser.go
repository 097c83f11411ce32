package project

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Plan File Format
// =============================================================================

type planFile struct {
	ProjectPath       string         `yaml:"projectPath"`
	Parameters        map[string]any `yaml:"parameters"`
	Environment       map[string]any `yaml:"environment"`
	Packages          []packageFile  `yaml:"packages"`
	Web               []webFile      `yaml:"web"`
	Bucket            *bucketFile    `yaml:"bucket"`
	ActionWrapPackage string         `yaml:"actionWrapPackage"`
	WebBuildResult    string         `yaml:"webBuildResult"`
	WebBuildError     string         `yaml:"webBuildError"`
	Deployer          Deployer       `yaml:"deployer"`
	Strays            []string       `yaml:"strays"`
}

type packageFile struct {
	Name        string         `yaml:"name"`
	Clean       bool           `yaml:"clean"`
	Shared      bool           `yaml:"shared"`
	Parameters  map[string]any `yaml:"parameters"`
	Environment map[string]any `yaml:"environment"`
	Annotations map[string]any `yaml:"annotations"`
	Actions     []actionFile   `yaml:"actions"`
}

type actionFile struct {
	Name        string         `yaml:"name"`
	Code        *string        `yaml:"code"`
	File        string         `yaml:"file"`
	Sequence    []string       `yaml:"sequence"`
	BuildResult string         `yaml:"buildResult"`
	BuildError  string         `yaml:"buildError"`
	Runtime     string         `yaml:"runtime"`
	Binary      bool           `yaml:"binary"`
	Main        string         `yaml:"main"`
	Docker      string         `yaml:"docker"`
	Zipped      bool           `yaml:"zipped"`
	Web         any            `yaml:"web"`
	WebSecure   any            `yaml:"webSecure"`
	Limits      Limits         `yaml:"limits"`
	Parameters  map[string]any `yaml:"parameters"`
	Environment map[string]any `yaml:"environment"`
	Annotations map[string]any `yaml:"annotations"`
	Clean       bool           `yaml:"clean"`
	Triggers    []triggerFile  `yaml:"triggers"`
}

type triggerFile struct {
	Name          string `yaml:"name"`
	SourceType    string `yaml:"sourceType"`
	Enabled       *bool  `yaml:"enabled"`
	SourceDetails struct {
		Cron     string         `yaml:"cron"`
		WithBody map[string]any `yaml:"withBody"`
	} `yaml:"sourceDetails"`
}

type webFile struct {
	FilePath   string `yaml:"filePath"`
	SimpleName string `yaml:"simpleName"`
	MimeType   string `yaml:"mimeType"`
}

type bucketFile struct {
	Clean        bool   `yaml:"clean"`
	PrefixPath   string `yaml:"prefixPath"`
	MainPage     string `yaml:"mainPageSuffix"`
	NotFoundPage string `yaml:"notFoundPage"`
}

// =============================================================================
// Parsing
// =============================================================================

// Parse decodes a resolved plan from YAML. Credentials, flags and the
// includer are not part of the file; the caller fills them in.
func Parse(data []byte) (*Plan, error) {
	if len(data) == 0 {
		return nil, NewValidationError("", "plan is empty", ErrInvalidYAML)
	}
	var raw planFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, NewValidationError("", err.Error(), ErrInvalidYAML)
	}

	plan := &Plan{
		ProjectPath:       raw.ProjectPath,
		Parameters:        raw.Parameters,
		Environment:       raw.Environment,
		ActionWrapPackage: raw.ActionWrapPackage,
		WebBuildResult:    raw.WebBuildResult,
		WebBuildError:     raw.WebBuildError,
		Deployer:          raw.Deployer,
		Strays:            raw.Strays,
	}
	if raw.Bucket != nil {
		plan.Bucket = &BucketSpec{
			Clean:        raw.Bucket.Clean,
			PrefixPath:   raw.Bucket.PrefixPath,
			MainPage:     raw.Bucket.MainPage,
			NotFoundPage: raw.Bucket.NotFoundPage,
		}
	}
	for _, w := range raw.Web {
		plan.Web = append(plan.Web, WebResource(w))
	}
	for _, rp := range raw.Packages {
		pkg, err := convertPackage(rp)
		if err != nil {
			return nil, err
		}
		plan.Packages = append(plan.Packages, pkg)
	}
	return plan, nil
}

func convertPackage(rp packageFile) (Package, error) {
	pkg := Package{
		Name:        rp.Name,
		Clean:       rp.Clean,
		Shared:      rp.Shared,
		Parameters:  rp.Parameters,
		Environment: rp.Environment,
		Annotations: rp.Annotations,
	}
	for _, ra := range rp.Actions {
		field := fmt.Sprintf("packages[%s].actions[%s]", rp.Name, ra.Name)
		action, err := convertAction(rp.Name, ra)
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				return Package{}, err
			}
			return Package{}, NewValidationError(field, err.Error(), err)
		}
		pkg.Actions = append(pkg.Actions, action)
	}
	return pkg, nil
}

func convertAction(pkgName string, ra actionFile) (Action, error) {
	field := fmt.Sprintf("packages[%s].actions[%s]", pkgName, ra.Name)
	source, err := convertSource(ra)
	if err != nil {
		return Action{}, NewValidationError(field, err.Error(), ErrConflictingSources)
	}
	web, err := ParseWebMode(ra.Web)
	if err != nil {
		return Action{}, NewValidationError(field+".web", err.Error(), ErrInvalidWebMode)
	}
	webSecure, err := parseWebSecure(ra.WebSecure)
	if err != nil {
		return Action{}, NewValidationError(field+".webSecure", err.Error(), ErrInvalidWebSecure)
	}

	action := Action{
		Name:        ra.Name,
		Package:     pkgName,
		Source:      source,
		Runtime:     ra.Runtime,
		Binary:      ra.Binary,
		Main:        ra.Main,
		Docker:      ra.Docker,
		Zipped:      ra.Zipped,
		Web:         web,
		WebSecure:   webSecure,
		Limits:      ra.Limits,
		Parameters:  ra.Parameters,
		Environment: ra.Environment,
		Annotations: ra.Annotations,
		Clean:       ra.Clean,
	}
	for _, rt := range ra.Triggers {
		enabled := true
		if rt.Enabled != nil {
			enabled = *rt.Enabled
		}
		action.Triggers = append(action.Triggers, Trigger{
			Name:       rt.Name,
			SourceType: rt.SourceType,
			Enabled:    enabled,
			Cron:       rt.SourceDetails.Cron,
			WithBody:   rt.SourceDetails.WithBody,
		})
	}
	return action, nil
}

// convertSource picks the content source in deploy priority order.
func convertSource(ra actionFile) (Source, error) {
	switch {
	case ra.BuildError != "":
		return RemoteBuildError{Message: ra.BuildError}, nil
	case ra.BuildResult != "":
		return RemoteBuildToken{ActivationID: ra.BuildResult}, nil
	case ra.Code != nil:
		if ra.Sequence != nil {
			return nil, errors.New("an action cannot be a sequence and also have inline code")
		}
		return InlineCode{Code: *ra.Code}, nil
	case ra.Sequence != nil:
		if ra.File != "" {
			return nil, errors.New("an action cannot be a sequence and also exist in the project directory structure")
		}
		return SequenceRef{Components: ra.Sequence}, nil
	case ra.File != "":
		return SourceFile{Path: ra.File}, nil
	default:
		return nil, nil
	}
}

// ParseWebMode accepts only a boolean or the string "raw". Other values are
// rejected rather than guessed at.
func ParseWebMode(v any) (WebMode, error) {
	switch val := v.(type) {
	case nil:
		return WebOff, nil
	case bool:
		if val {
			return WebStandard, nil
		}
		return WebOff, nil
	case string:
		if val == "raw" {
			return WebRaw, nil
		}
	}
	return WebOff, fmt.Errorf("web must be true, false or \"raw\", got %v", v)
}

func parseWebSecure(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case bool:
		if !val {
			return "", nil
		}
		return "", errors.New("webSecure: true must be resolved to a secret before deployment")
	case string:
		return val, nil
	}
	return "", fmt.Errorf("webSecure must be false or a string, got %v", v)
}

// =============================================================================
// Scoping
// =============================================================================

// ApplyIncluder sets the plan's includer and moves every action and web
// resource it excludes into Strays.
func ApplyIncluder(plan *Plan, in Includer) {
	plan.Includer = in
	var packages []Package
	for _, pkg := range plan.Packages {
		if !in.IsPackageIncluded(pkg.Name, false) {
			for _, a := range pkg.Actions {
				plan.Strays = append(plan.Strays, a.QualifiedName())
			}
			continue
		}
		kept := pkg
		kept.Actions = nil
		for _, a := range pkg.Actions {
			if in.IsActionIncluded(pkg.Name, a.Name) {
				kept.Actions = append(kept.Actions, a)
			} else {
				plan.Strays = append(plan.Strays, a.QualifiedName())
			}
		}
		packages = append(packages, kept)
	}
	plan.Packages = packages
	if !in.IsWebIncluded() {
		for _, w := range plan.Web {
			plan.Strays = append(plan.Strays, w.SimpleName)
		}
		plan.Web = nil
	}
}
