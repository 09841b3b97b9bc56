package web

import "time"

// GameSummary is the public shape of a game. It carries no pairing data.
type GameSummary struct {
	Code         string    `json:"code"`
	CreatorID    int64     `json:"creator_id"`
	Participants int       `json:"participants"`
	DrawDone     bool      `json:"draw_done"`
	CreatedAt    time.Time `json:"created_at"`
}

type ParticipantRow struct {
	Name       string
	HasWish    bool
	Paired     bool
	GiftBought bool
	JoinedAt   time.Time
}

type EventRow struct {
	Type      string
	UserID    int64
	CreatedAt time.Time
}
