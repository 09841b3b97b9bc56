package santa

import (
	"context"
	"fmt"
)

// Store is the durable state for games and participants. Implementations must
// be safe for concurrent use; JoinGame, Leave and ApplyAssignment are atomic.
type Store interface {
	// CreateGame inserts the game unless the code already exists.
	CreateGame(ctx context.Context, code string, creatorID int64) error
	// JoinGame returns ErrAlreadyMember or ErrUnknownGameCode without mutating state.
	JoinGame(ctx context.Context, userID int64, username, fullName, code string) error
	Game(ctx context.Context, code string) (Game, error)
	LatestGameByCreator(ctx context.Context, creatorID int64) (Game, error)
	IsCreator(ctx context.Context, userID int64, code string) (bool, error)

	SetWish(ctx context.Context, userID int64, wish string) error
	Wish(ctx context.Context, userID int64) (string, error)
	MarkGiftBought(ctx context.Context, userID int64) error

	Participant(ctx context.Context, userID int64) (Participant, error)
	// ListParticipants returns the member ids in join order.
	ListParticipants(ctx context.Context, code string) ([]int64, error)
	// Participants returns full rows ordered by full name.
	Participants(ctx context.Context, code string) ([]Participant, error)

	SantaID(ctx context.Context, userID int64) (*int64, error)
	WardID(ctx context.Context, userID int64) (*int64, error)
	GameCodeForUser(ctx context.Context, userID int64) (string, bool, error)
	IsDrawDone(ctx context.Context, code string) (bool, error)

	// Leave deletes the row and clears the counterparts' pointers into it.
	Leave(ctx context.Context, userID int64) (LeaveResult, error)
	// ApplyAssignment writes the santa -> ward mapping for the whole game or
	// nothing. It returns ErrAlreadyDone when a draw was committed first.
	ApplyAssignment(ctx context.Context, code string, pairs map[int64]int64) error
}

// ValidateAssignment checks that pairs is a derangement of members: every
// member gives exactly once, receives exactly once, and never to themselves.
func ValidateAssignment(members []int64, pairs map[int64]int64) error {
	if len(pairs) != len(members) {
		return fmt.Errorf("%w: mapping covers %d of %d participants", ErrAssignmentFailed, len(pairs), len(members))
	}
	inGame := make(map[int64]struct{}, len(members))
	for _, id := range members {
		inGame[id] = struct{}{}
	}
	received := make(map[int64]struct{}, len(members))
	for santaID, wardID := range pairs {
		if _, ok := inGame[santaID]; !ok {
			return fmt.Errorf("%w: santa %d is not in the game", ErrAssignmentFailed, santaID)
		}
		if _, ok := inGame[wardID]; !ok {
			return fmt.Errorf("%w: ward %d is not in the game", ErrAssignmentFailed, wardID)
		}
		if santaID == wardID {
			return fmt.Errorf("%w: participant %d paired with themselves", ErrAssignmentFailed, santaID)
		}
		if _, dup := received[wardID]; dup {
			return fmt.Errorf("%w: ward %d assigned twice", ErrAssignmentFailed, wardID)
		}
		received[wardID] = struct{}{}
	}
	return nil
}

// ExplainMissing works out why userID has no counterpart in the given role.
func ExplainMissing(ctx context.Context, store Store, userID int64, role Role) (*NoAssignmentError, error) {
	code, ok, err := store.GameCodeForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &NoAssignmentError{Role: role, Cause: CauseNotMember}, nil
	}
	done, err := store.IsDrawDone(ctx, code)
	if err != nil {
		return nil, err
	}
	if !done {
		return &NoAssignmentError{Role: role, Cause: CauseDrawNotRun, GameCode: code}, nil
	}
	return &NoAssignmentError{Role: role, Cause: CauseLookupFailed, GameCode: code}, nil
}
