package santa

import "errors"

var (
	ErrAlreadyMember            = errors.New("already a member of a game")
	ErrUnknownGameCode          = errors.New("unknown game code")
	ErrInsufficientParticipants = errors.New("not enough participants")
	ErrAlreadyDone              = errors.New("draw already done")
	ErrAssignmentFailed         = errors.New("assignment failed")
	ErrNoAssignment             = errors.New("no assignment")
	ErrDeliveryFailed           = errors.New("delivery failed")
	ErrNotMember                = errors.New("not a member of any game")
	ErrNotCreator               = errors.New("only the game creator can do this")
	ErrGameNotFound             = errors.New("game not found")
)

type NoAssignmentCause string

const (
	CauseNotMember    NoAssignmentCause = "not_member"
	CauseDrawNotRun   NoAssignmentCause = "draw_not_run"
	CauseLookupFailed NoAssignmentCause = "lookup_failed"
)

// NoAssignmentError explains why a Santa or Ward could not be resolved.
// CauseLookupFailed means the draw ran but the pointer is missing, which is a
// data problem rather than a normal user state.
type NoAssignmentError struct {
	Role     Role
	Cause    NoAssignmentCause
	GameCode string
}

func (e *NoAssignmentError) Error() string {
	return "no " + e.Role.String() + " assignment: " + string(e.Cause)
}

func (e *NoAssignmentError) Is(target error) bool {
	return target == ErrNoAssignment
}
