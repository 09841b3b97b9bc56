// Package santa holds the gift-exchange data model, its error taxonomy and
// the storage contract shared by every other package.
package santa

import (
	"strconv"
	"time"
)

type Role int

const (
	RoleSanta Role = iota + 1
	RoleWard
)

func (r Role) String() string {
	switch r {
	case RoleSanta:
		return "santa"
	case RoleWard:
		return "ward"
	default:
		return "unknown"
	}
}

// Game.DrawnAt is set once by the draw and never cleared, so a game stays
// drawn after participants leave.
type Game struct {
	Code      string
	CreatorID int64
	CreatedAt time.Time
	DrawnAt   *time.Time
}

// Participant is one user's membership row.
//
// SantaOf is the Ward this participant gives a gift to; WardOf is the Santa
// giving a gift to this participant. Both are nil until the draw.
type Participant struct {
	UserID     int64
	Username   string
	FullName   string
	GameCode   string
	Wish       string
	SantaOf    *int64
	WardOf     *int64
	GiftBought bool
	JoinedAt   time.Time
}

func (p Participant) DisplayName() string {
	name := p.FullName
	if name == "" {
		name = "ID" + strconv.FormatInt(p.UserID, 10)
	}
	if p.Username != "" {
		name += " (@" + p.Username + ")"
	}
	return name
}

// LeaveResult reports what a Leave removed. FormerSanta and FormerWard are the
// counterparts whose pointers were cleared.
type LeaveResult struct {
	Existed     bool
	GameCode    string
	FormerSanta *int64
	FormerWard  *int64
}

type EventType string

const (
	EventGameCreated           EventType = "game_created"
	EventParticipantJoined     EventType = "participant_joined"
	EventDrawCompleted         EventType = "draw_completed"
	EventParticipantLeft       EventType = "participant_left"
	EventAssignmentInvalidated EventType = "assignment_invalidated"
)

// GameEvent is a lifecycle notice about a game. It never carries pairing data.
type GameEvent struct {
	Type     EventType `json:"type"`
	GameCode string    `json:"game_code"`
	UserID   int64     `json:"user_id,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

func int64Ptr(v int64) *int64 {
	return &v
}
