package response

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/artpar/fndeploy/internal/core/versions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Combine Tests
// =============================================================================

func TestCombine_Empty(t *testing.T) {
	r := Combine()
	assert.Empty(t, r.Successes)
	assert.Empty(t, r.Failures)
	assert.NotNil(t, r.ActionVersions)
}

func TestCombine_ConcatenatesLists(t *testing.T) {
	a := WrapSuccess("a", KindAction, false, "", nil, "ns")
	b := WrapError(errors.New("boom"), "action 'b'")
	c := Strays([]string{"stray.txt"})

	r := Combine(a, b, c)

	require.Len(t, r.Successes, 1)
	assert.Equal(t, "a", r.Successes[0].Name)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, "action 'b'", r.Failures[0].Context)
	assert.Equal(t, []string{"stray.txt"}, r.Ignored)
	assert.Equal(t, "ns", r.Namespace)
}

func TestCombine_RightBiasedVersions(t *testing.T) {
	left := Empty()
	left.ActionVersions["x"] = versions.Info{Version: "1", Digest: "old"}
	left.PackageVersions["p"] = versions.Info{Version: "1", Digest: "pold"}
	right := Empty()
	right.ActionVersions["x"] = versions.Info{Version: "2", Digest: "new"}

	r := Combine(left, right)
	assert.Equal(t, "new", r.ActionVersions["x"].Digest)
	assert.Equal(t, "pold", r.PackageVersions["p"].Digest)

	r = Combine(right, left)
	assert.Equal(t, "old", r.ActionVersions["x"].Digest)
}

func TestCombine_Associative(t *testing.T) {
	a := WrapSuccess("a", KindAction, false, "", map[string]versions.Info{"a": {Version: "1", Digest: "da"}}, "")
	b := WrapError(errors.New("b failed"), "action 'b'")
	c := WrapSuccess("c", KindAction, true, "", map[string]versions.Info{"a": {Version: "2", Digest: "da2"}}, "")

	left := Combine(Combine(a, b), c)
	right := Combine(a, Combine(b, c))

	assert.Equal(t, left.Successes, right.Successes)
	assert.Equal(t, left.Failures, right.Failures)
	assert.Equal(t, left.ActionVersions, right.ActionVersions)
	assert.Equal(t, "da2", left.ActionVersions["a"].Digest)
}

func TestCombine_SameElementsAnyOrder(t *testing.T) {
	a := WrapSuccess("a", KindAction, false, "", nil, "")
	b := WrapSuccess("b", KindWeb, false, "", nil, "")

	assert.ElementsMatch(t, Combine(a, b).Successes, Combine(b, a).Successes)
}

// =============================================================================
// JSON Tests
// =============================================================================

func TestFailure_JSONRendersMessage(t *testing.T) {
	r := WrapError(errors.New("not allowed"), "package 'default'")
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"error":"not allowed"`)

	var back Response
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back.Failures, 1)
	assert.EqualError(t, back.Failures[0].Err, "not allowed")
}

func TestResponse_Versions(t *testing.T) {
	r := Empty()
	r.ActionVersions["a"] = versions.Info{Version: "1", Digest: "d"}
	e := r.Versions()
	assert.Equal(t, "d", e.ActionVersions["a"].Digest)
	assert.False(t, r.HasFailures())
}

func TestResponse_VersionsOver(t *testing.T) {
	base := versions.NewEntry()
	base.ActionVersions["a"] = versions.Info{Version: "1", Digest: "old"}
	base.ActionVersions["b"] = versions.Info{Version: "1", Digest: "kept"}
	base.PackageVersions["p"] = versions.Info{Version: "3", Digest: "pkg"}

	r := Empty()
	r.ActionVersions["a"] = versions.Info{Version: "2", Digest: "new"}

	e := r.VersionsOver(base)

	assert.Equal(t, "new", e.ActionVersions["a"].Digest)
	assert.Equal(t, "kept", e.ActionVersions["b"].Digest)
	assert.Equal(t, "pkg", e.PackageVersions["p"].Digest)
	assert.Equal(t, "old", base.ActionVersions["a"].Digest, "base is not modified")
}
