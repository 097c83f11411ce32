// Package digest computes stable content fingerprints for actions and
// packages. Equal digests mean the deployable content is the same; digests
// drive skip decisions only and never identify a unit.
//
// Names and annotations are excluded: renaming or re-annotating a unit does
// not by itself change what runs on the platform.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
	"strconv"

	"github.com/artpar/fndeploy/internal/core/project"
)

// Action digests an action's deployable fields together with its code, which
// the caller has already read (binary code is the base64 form).
//
// Fields, in order: code, runtime, binary, main, docker image, web mode,
// web-secure challenge, limits, parameters, environment.
func Action(action project.Action, code string) string {
	w := newWriter()
	w.field([]byte(code))
	w.field([]byte(action.Runtime))
	w.field([]byte(strconv.FormatBool(action.Binary)))
	w.field([]byte(action.Main))
	w.field([]byte(action.Docker))
	w.field([]byte(action.Web.String()))
	w.field([]byte(action.WebSecure))
	w.value(action.Limits)
	w.value(action.Parameters)
	w.value(action.Environment)
	return w.sum()
}

// Package digests a package's deployable fields. params and env are the
// values actually sent, i.e. project-level values merged under the package's.
func Package(pkg project.Package, params, env map[string]any) string {
	w := newWriter()
	w.field([]byte(strconv.FormatBool(pkg.Shared)))
	w.value(params)
	w.value(env)
	return w.sum()
}

// =============================================================================
// Length-prefixed writer
// =============================================================================

type writer struct {
	h hash.Hash
}

func newWriter() *writer {
	return &writer{h: sha256.New()}
}

// field writes an 8-byte big-endian length prefix followed by data so that
// adjacent fields cannot run together.
func (w *writer) field(data []byte) {
	var prefix [8]byte
	binary.BigEndian.PutUint64(prefix[:], uint64(len(data)))
	w.h.Write(prefix[:])
	w.h.Write(data)
}

// value writes the canonical JSON form of v. encoding/json sorts map keys,
// which makes maps deterministic. A nil map and an empty map hash the same.
func (w *writer) value(v any) {
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		w.field([]byte("{}"))
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		// Values come from YAML or JSON decoding and always marshal; fall back
		// to a marker rather than dropping the field.
		data = []byte("!" + err.Error())
	}
	w.field(data)
}

func (w *writer) sum() string {
	return hex.EncodeToString(w.h.Sum(nil))
}
