package project

// Source is where an action's deployable content comes from. It is a closed
// set; the deployer switches over it exhaustively. A nil Source means the
// action was named in the configuration but has no content.
type Source interface {
	isSource()
}

// InlineCode is code supplied directly in the plan.
type InlineCode struct {
	Code string
}

// SourceFile is code read from a project file at deploy time.
type SourceFile struct {
	Path string
}

// SequenceRef makes the action a sequence of other actions. Components may be
// bare ("pkg/name") or fully qualified ("/ns/pkg/name").
type SequenceRef struct {
	Components []string
}

// RemoteBuildToken is the activation id of a remote build still producing
// this action.
type RemoteBuildToken struct {
	ActivationID string
}

// RemoteBuildError is a remote build that failed before deployment started.
type RemoteBuildError struct {
	Message string
}

func (InlineCode) isSource()       {}
func (SourceFile) isSource()       {}
func (SequenceRef) isSource()      {}
func (RemoteBuildToken) isSource() {}
func (RemoteBuildError) isSource() {}

func (e RemoteBuildError) Error() string {
	return e.Message
}
