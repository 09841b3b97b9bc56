package conversation

const (
	LabelCreate       = "🆕 Create game"
	LabelJoin         = "🚪 Join game"
	LabelWish         = "🎁 My wish"
	LabelWardWish     = "📜 Ward's wish"
	LabelMessageSanta = "🎅 Message Santa"
	LabelMessageWard  = "👧 Message ward"
	LabelLeave        = "👋 Leave game"
	LabelParticipants = "👥 Participants"
	LabelDraw         = "🎲 Run draw"
	LabelCancel       = "❌ Cancel"
)

var intentByLabel = map[string]Intent{
	LabelCreate:       IntentCreate,
	LabelJoin:         IntentJoin,
	LabelWish:         IntentWish,
	LabelWardWish:     IntentWardWish,
	LabelMessageSanta: IntentMessageSanta,
	LabelMessageWard:  IntentMessageWard,
	LabelLeave:        IntentLeave,
	LabelParticipants: IntentParticipants,
	LabelDraw:         IntentDraw,
}

var cancelMenu = [][]string{{LabelCancel}}

// mainMenu builds the keyboard for a user. Creators also get the
// participants list, and the draw button until the draw has run.
func mainMenu(isCreator, drawDone bool) [][]string {
	rows := [][]string{
		{LabelCreate, LabelJoin},
		{LabelWish, LabelWardWish},
		{LabelMessageSanta, LabelMessageWard},
		{LabelLeave},
	}
	if !isCreator {
		return rows
	}
	extra := [][]string{{LabelParticipants}}
	if !drawDone {
		extra = append(extra, []string{LabelDraw})
	}
	out := make([][]string, 0, len(rows)+len(extra))
	out = append(out, rows[0])
	out = append(out, extra...)
	return append(out, rows[1:]...)
}
