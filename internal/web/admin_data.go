package web

// AdminData feeds the admin game page. InMemory marks a process without a
// database, where the event log is unavailable.
type AdminData struct {
	Game         GameSummary
	CreatorName  string
	Participants []ParticipantRow
	Events       []EventRow
	InMemory     bool
}

func (d AdminData) PairedCount() int {
	n := 0
	for _, p := range d.Participants {
		if p.Paired {
			n++
		}
	}
	return n
}

func (d AdminData) GiftsBought() int {
	n := 0
	for _, p := range d.Participants {
		if p.GiftBought {
			n++
		}
	}
	return n
}
