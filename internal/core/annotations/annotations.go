// Package annotations computes the annotations the deployer attaches to
// packages and actions, and merges them with annotations already present on
// the remote object so metadata attached by other tools survives redeploys.
package annotations

import (
	"sort"

	"github.com/artpar/fndeploy/internal/core/project"
)

// Annotation keys owned by the deployer.
const (
	KeyDeployer    = "deployer"
	KeyFinal       = "final"
	KeyWebExport   = "web-export"
	KeyRawHTTP     = "raw-http"
	KeyRequireAuth = "require-whisk-auth"

	// legacyDeployerKey is removed from former package annotations.
	legacyDeployerKey = "deployerAnnot"
)

// DigestPrefixLen is how much of a digest the deployer annotation records.
const DigestPrefixLen = 8

// KeyValue is the platform's wire form for parameters and annotations. Init
// marks environment values that are bound at action initialization.
type KeyValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Init  bool   `json:"init,omitempty"`
}

// =============================================================================
// Computation
// =============================================================================

// DeployerWithDigest returns a copy of d recording the digest prefix.
func DeployerWithDigest(d project.Deployer, digest string) project.Deployer {
	if len(digest) > DigestPrefixLen {
		digest = digest[:DigestPrefixLen]
	}
	d.Digest = digest
	return d
}

// Web returns the web-exposure annotations for a mode.
func Web(mode project.WebMode) map[string]any {
	switch mode {
	case project.WebStandard:
		return map[string]any{KeyWebExport: true, KeyRawHTTP: false}
	case project.WebRaw:
		return map[string]any{KeyWebExport: true, KeyRawHTTP: true}
	default:
		return map[string]any{KeyWebExport: false, KeyRawHTTP: false}
	}
}

// RequireAuth returns the auth-required annotation value: the challenge
// string when one is configured, false otherwise.
func RequireAuth(webSecure string) any {
	if webSecure != "" {
		return webSecure
	}
	return false
}

// ForAction returns the annotations the deployer sets on an action, on top of
// the action's own.
func ForAction(action project.Action, deployer project.Deployer) map[string]any {
	out := make(map[string]any, len(action.Annotations)+6)
	for k, v := range action.Annotations {
		out[k] = v
	}
	deployer.Zipped = action.Zipped
	out[KeyDeployer] = deployer
	out[KeyFinal] = true
	for k, v := range Web(action.Web) {
		out[k] = v
	}
	out[KeyRequireAuth] = RequireAuth(action.WebSecure)
	return out
}

// ForPackage returns the annotations the deployer sets on a package.
func ForPackage(pkg project.Package, deployer project.Deployer) map[string]any {
	out := make(map[string]any, len(pkg.Annotations)+1)
	for k, v := range pkg.Annotations {
		out[k] = v
	}
	out[KeyDeployer] = deployer
	return out
}

// =============================================================================
// Merging and Encoding
// =============================================================================

// Merge lays next over former. Keys in next win.
func Merge(former, next map[string]any) map[string]any {
	out := make(map[string]any, len(former)+len(next))
	for k, v := range former {
		out[k] = v
	}
	for k, v := range next {
		out[k] = v
	}
	return out
}

// FormerPackage converts a remote package's annotations to a map, dropping the
// legacy deployer key.
func FormerPackage(kvs []KeyValue) map[string]any {
	m := ToMap(kvs)
	delete(m, legacyDeployerKey)
	return m
}

// ToMap converts key/value pairs to a map.
func ToMap(kvs []KeyValue) map[string]any {
	out := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}

// ToKeyValues converts a map to key/value pairs sorted by key.
func ToKeyValues(m map[string]any) []KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, KeyValue{Key: k, Value: m[k]})
	}
	return out
}

// EncodeParameters renders parameters followed by environment entries, the
// latter flagged Init.
func EncodeParameters(params, env map[string]any) []KeyValue {
	out := ToKeyValues(params)
	for _, kv := range ToKeyValues(env) {
		kv.Init = true
		out = append(out, kv)
	}
	return out
}
