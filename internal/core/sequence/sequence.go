// Package sequence orders sequence actions so that every sequence is
// deployed after the in-scope sequences it references.
//
// The platform checks sequence components at creation time, so a sequence
// referring to another sequence of the same deployment must be created second.
package sequence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/fndeploy/internal/core/project"
)

// =============================================================================
// Names
// =============================================================================

// FQN converts a resource name to fully qualified form "/ns/name". Names
// already starting with "/" pass through.
func FQN(name, namespace string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + namespace + "/" + name
}

// ActionFQN returns the fully qualified name of an action.
func ActionFQN(action project.Action, namespace string) string {
	return "/" + namespace + "/" + action.QualifiedName()
}

// Components returns the sequence's components in fully qualified form.
func Components(ref project.SequenceRef, namespace string) []string {
	out := make([]string, 0, len(ref.Components))
	for _, c := range ref.Components {
		out = append(out, FQN(c, namespace))
	}
	return out
}

// =============================================================================
// Errors
// =============================================================================

// ErrCycle is returned when sequences depend on each other.
var ErrCycle = errors.New("a cycle was detected in mutually dependent sequences")

// CycleError reports one cycle, as fully qualified names from the first
// repeated sequence back to itself.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// =============================================================================
// Sorting
// =============================================================================

// WarnFunc receives non-fatal findings.
type WarnFunc func(format string, args ...any)

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

type frame struct {
	idx  int
	next int
}

// Sort returns seqs reordered so that each sequence follows every sequence
// of seqs it references. Ties keep input order. known holds the fully
// qualified names of every action in the deployment; a component in the
// deployment's own namespace that is not known is reported through warn.
//
// The traversal is an iterative depth-first search with an explicit stack,
// so deep dependency chains do not grow the goroutine stack.
func Sort(seqs []project.Action, namespace string, known map[string]bool, warn WarnFunc) ([]project.Action, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}
	byName := make(map[string]int, len(seqs))
	names := make([]string, len(seqs))
	for i, s := range seqs {
		names[i] = ActionFQN(s, namespace)
		if _, dup := byName[names[i]]; !dup {
			byName[names[i]] = i
		}
	}

	nsPrefix := "/" + namespace + "/"
	state := make(map[string]visitState, len(seqs))
	result := make([]project.Action, 0, len(seqs))

	for root := range seqs {
		if state[names[root]] != unvisited {
			continue
		}
		state[names[root]] = inProgress
		stack := []frame{{idx: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			components := componentsOf(seqs[top.idx])
			if top.next >= len(components) {
				state[names[top.idx]] = done
				result = append(result, seqs[top.idx])
				stack = stack[:len(stack)-1]
				continue
			}

			member := FQN(components[top.next], namespace)
			top.next++

			if strings.HasPrefix(member, nsPrefix) && !known[member] {
				warn("Sequence '%s' contains action '%s' which is in the same namespace but not part of the deployment",
					seqs[top.idx].Name, member)
			}
			dep, ok := byName[member]
			if !ok {
				continue
			}
			switch state[member] {
			case inProgress:
				return nil, &CycleError{Path: cyclePath(stack, names, member)}
			case unvisited:
				state[member] = inProgress
				stack = append(stack, frame{idx: dep})
			}
		}
	}
	return result, nil
}

func componentsOf(action project.Action) []string {
	if ref, ok := action.Source.(project.SequenceRef); ok {
		return ref.Components
	}
	return nil
}

// cyclePath extracts the stack segment from member's frame to the top,
// closed with member again.
func cyclePath(stack []frame, names []string, member string) []string {
	start := 0
	for i, f := range stack {
		if names[f.idx] == member {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, names[f.idx])
	}
	return append(path, member)
}
