package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncluder_Everything(t *testing.T) {
	in := IncludeEverything()
	assert.True(t, in.IsIncludingEverything())
	assert.True(t, in.IsWebIncluded())
	assert.True(t, in.IsPackageIncluded("admin", true))
	assert.True(t, in.IsActionIncluded("admin", "hello"))
}

func TestIncluder_IncludeList(t *testing.T) {
	in := NewIncluder([]string{"admin/", "util/echo"}, nil)

	assert.False(t, in.IsIncludingEverything())
	assert.False(t, in.IsWebIncluded())
	assert.True(t, in.IsPackageIncluded("admin", true))
	assert.True(t, in.IsPackageIncluded("util", false))
	assert.False(t, in.IsPackageIncluded("util", true))
	assert.True(t, in.IsActionIncluded("util", "echo"))
	assert.False(t, in.IsActionIncluded("util", "other"))
	assert.False(t, in.IsActionIncluded("default", "hello"))
}

func TestIncluder_ExcludeList(t *testing.T) {
	in := NewIncluder(nil, []string{"web", "admin/secret"})

	assert.False(t, in.IsIncludingEverything())
	assert.False(t, in.IsWebIncluded())
	assert.True(t, in.IsPackageIncluded("admin", false))
	assert.False(t, in.IsPackageIncluded("admin", true))
	assert.False(t, in.IsActionIncluded("admin", "secret"))
	assert.True(t, in.IsActionIncluded("admin", "public"))
}
