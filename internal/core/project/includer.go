package project

import "strings"

// Includer decides which parts of a project take part in a run.
type Includer interface {
	IsWebIncluded() bool
	// IsPackageIncluded reports whether any of the package is included, or,
	// when all is set, whether the package is included in its entirety.
	IsPackageIncluded(pkg string, all bool) bool
	IsActionIncluded(pkg, action string) bool
	IsIncludingEverything() bool
}

// webToken selects web content in include/exclude lists.
const webToken = "web"

// PatternIncluder implements Includer from include and exclude lists. Entries
// are "web", "pkg" or "pkg/" for a whole package, and "pkg/action" for one
// action. An empty include list includes everything not excluded.
type PatternIncluder struct {
	includeAll  bool
	web         bool
	packages    map[string]bool
	actions     map[string]bool
	excludeWeb  bool
	excludePkgs map[string]bool
	excludeActs map[string]bool
}

// NewIncluder builds a PatternIncluder.
func NewIncluder(include, exclude []string) *PatternIncluder {
	in := &PatternIncluder{
		includeAll:  len(include) == 0,
		packages:    map[string]bool{},
		actions:     map[string]bool{},
		excludePkgs: map[string]bool{},
		excludeActs: map[string]bool{},
	}
	for _, tok := range include {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if tok == webToken {
			in.web = true
			continue
		}
		if pkg, action, ok := strings.Cut(strings.TrimSuffix(tok, "/"), "/"); ok {
			in.actions[pkg+"/"+action] = true
			continue
		}
		in.packages[strings.TrimSuffix(tok, "/")] = true
	}
	for _, tok := range exclude {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if tok == webToken {
			in.excludeWeb = true
			continue
		}
		if pkg, action, ok := strings.Cut(strings.TrimSuffix(tok, "/"), "/"); ok {
			in.excludeActs[pkg+"/"+action] = true
			continue
		}
		in.excludePkgs[strings.TrimSuffix(tok, "/")] = true
	}
	return in
}

// IncludeEverything returns an Includer that accepts the whole project.
func IncludeEverything() *PatternIncluder {
	return NewIncluder(nil, nil)
}

func (in *PatternIncluder) IsWebIncluded() bool {
	if in.excludeWeb {
		return false
	}
	return in.includeAll || in.web
}

func (in *PatternIncluder) IsPackageIncluded(pkg string, all bool) bool {
	if in.excludePkgs[pkg] {
		return false
	}
	if all {
		for key := range in.excludeActs {
			if strings.HasPrefix(key, pkg+"/") {
				return false
			}
		}
		return in.includeAll || in.packages[pkg]
	}
	if in.includeAll || in.packages[pkg] {
		return true
	}
	for key := range in.actions {
		if strings.HasPrefix(key, pkg+"/") {
			return true
		}
	}
	return false
}

func (in *PatternIncluder) IsActionIncluded(pkg, action string) bool {
	key := pkg + "/" + action
	if in.excludePkgs[pkg] || in.excludeActs[key] {
		return false
	}
	return in.includeAll || in.packages[pkg] || in.actions[key]
}

func (in *PatternIncluder) IsIncludingEverything() bool {
	return in.includeAll && !in.excludeWeb && len(in.excludePkgs) == 0 && len(in.excludeActs) == 0
}
