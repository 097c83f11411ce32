// Package runtimes answers questions about the runtime kinds a platform
// supports. A Config is loaded once per API host by the shell and passed in.
package runtimes

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime is one runtime image of a language family.
type Runtime struct {
	Kind    string `json:"kind"`
	Default bool   `json:"default,omitempty"`
}

// Config maps a language label (e.g. "nodejs") to its runtime images.
type Config map[string][]Runtime

// DefaultSuffix marks a kind that should resolve to the label's default image.
const DefaultSuffix = ":default"

// ErrUnknownRuntime is returned for a kind that has no known file extension.
var ErrUnknownRuntime = errors.New("invalid runtime")

// extensions lists source file extensions per language label. The first
// entry is the preferred extension for the label.
var extensions = []struct {
	label string
	exts  []string
}{
	{"go", []string{"go"}},
	{"java", []string{"java", "jar"}},
	{"nodejs", []string{"js"}},
	{"typescript", []string{"ts"}},
	{"php", []string{"php"}},
	{"python", []string{"py"}},
	{"ruby", []string{"rb"}},
	{"rust", []string{"rs"}},
	{"swift", []string{"swift"}},
	{"deno", []string{"ts", "js"}},
	{"dotnet", []string{"cs", "vb"}},
}

var binaryExtensions = map[string]bool{"zip": true, "jar": true}

// Label returns the language part of a kind ("nodejs" for "nodejs:18").
func Label(kind string) string {
	label, _, _ := strings.Cut(kind, ":")
	return label
}

// IsValid reports whether kind names a runtime of the config. A kind with
// the ":default" version is valid when any label has a default image.
func (c Config) IsValid(kind string) bool {
	_, version, _ := strings.Cut(kind, ":")
	for _, images := range c {
		for _, img := range images {
			if version == "default" {
				if img.Default {
					return true
				}
				continue
			}
			if img.Kind == kind {
				return true
			}
		}
	}
	return false
}

// Default returns the default kind of a label, or "" when there is none.
func (c Config) Default(label string) string {
	for _, img := range c[label] {
		if img.Default {
			return img.Kind
		}
	}
	return ""
}

// Canonical resolves "<label>:default" to the label's default kind. Other
// kinds are returned unchanged.
func (c Config) Canonical(kind string) string {
	if strings.HasSuffix(kind, DefaultSuffix) {
		return c.Default(Label(kind))
	}
	return kind
}

// ForZipMid computes a kind from the middle part of "name.<mid>.zip",
// where mid is "label" or "label-version". It returns "" when the result is
// not a valid kind.
func (c Config) ForZipMid(mid string) string {
	kind := mid + DefaultSuffix
	if strings.Contains(mid, "-") {
		kind = strings.Replace(mid, "-", ":", 1)
	}
	if !c.IsValid(kind) {
		return ""
	}
	return kind
}

// ForFileExtension returns "<label>:default" for the first label claiming
// ext, or "" when none does.
func ForFileExtension(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	for _, e := range extensions {
		for _, x := range e.exts {
			if x == ext {
				return e.label + DefaultSuffix
			}
		}
	}
	return ""
}

// IsBinaryFileExtension reports whether files with ext hold binary data.
func IsBinaryFileExtension(ext string) bool {
	return binaryExtensions[strings.TrimPrefix(ext, ".")]
}

// FileExtensionFor returns the expected file extension of a language label.
// With binary set, only binary extensions qualify.
func FileExtensionFor(label string, binary bool) (string, error) {
	for _, e := range extensions {
		if e.label != label {
			continue
		}
		for _, x := range e.exts {
			if !binary || binaryExtensions[x] {
				return x, nil
			}
		}
		return "", fmt.Errorf("%w: %s has no binary file extension", ErrUnknownRuntime, label)
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownRuntime, label)
}

// Validate checks that every label carries at least one image with a kind.
func (c Config) Validate() error {
	if len(c) == 0 {
		return errors.New("runtime config is empty")
	}
	for label, images := range c {
		for i, img := range images {
			if img.Kind == "" {
				return fmt.Errorf("runtime %s[%d]: missing kind", label, i)
			}
		}
	}
	return nil
}
