package santa

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps games and participants in process memory. It is used when
// no database is configured and in tests.
type MemoryStore struct {
	mu           sync.Mutex
	nextSeq      int
	games        map[string]memoryGame
	participants map[int64]Participant

	// beforeCommit runs after an assignment is staged and before it becomes
	// visible; a non-nil error aborts the commit.
	beforeCommit func(code string) error
}

type memoryGame struct {
	game Game
	seq  int
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextSeq:      1,
		games:        make(map[string]memoryGame),
		participants: make(map[int64]Participant),
	}
}

func (s *MemoryStore) CreateGame(ctx context.Context, code string, creatorID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[code]; ok {
		return nil
	}
	s.games[code] = memoryGame{
		game: Game{Code: code, CreatorID: creatorID, CreatedAt: time.Now().UTC()},
		seq:  s.nextSeq,
	}
	s.nextSeq++
	return nil
}

func (s *MemoryStore) JoinGame(ctx context.Context, userID int64, username, fullName, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[userID]; ok {
		return ErrAlreadyMember
	}
	if _, ok := s.games[code]; !ok {
		return ErrUnknownGameCode
	}
	s.participants[userID] = Participant{
		UserID:   userID,
		Username: username,
		FullName: fullName,
		GameCode: code,
		JoinedAt: time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Game(ctx context.Context, code string) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[code]
	if !ok {
		return Game{}, ErrGameNotFound
	}
	return entry.game, nil
}

func (s *MemoryStore) LatestGameByCreator(ctx context.Context, creatorID int64) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *memoryGame
	for _, entry := range s.games {
		if entry.game.CreatorID != creatorID {
			continue
		}
		if latest == nil || entry.seq > latest.seq {
			candidate := entry
			latest = &candidate
		}
	}
	if latest == nil {
		return Game{}, ErrGameNotFound
	}
	return latest.game, nil
}

func (s *MemoryStore) IsCreator(ctx context.Context, userID int64, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.games[code]
	return ok && entry.game.CreatorID == userID, nil
}

func (s *MemoryStore) SetWish(ctx context.Context, userID int64, wish string) error {
	return s.update(ctx, userID, func(p *Participant) {
		p.Wish = wish
	})
}

func (s *MemoryStore) Wish(ctx context.Context, userID int64) (string, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if err == ErrNotMember {
			return "", nil
		}
		return "", err
	}
	return p.Wish, nil
}

func (s *MemoryStore) MarkGiftBought(ctx context.Context, userID int64) error {
	return s.update(ctx, userID, func(p *Participant) {
		p.GiftBought = true
	})
}

func (s *MemoryStore) update(ctx context.Context, userID int64, apply func(p *Participant)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return ErrNotMember
	}
	apply(&p)
	s.participants[userID] = p
	return nil
}

func (s *MemoryStore) Participant(ctx context.Context, userID int64) (Participant, error) {
	if err := ctx.Err(); err != nil {
		return Participant{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return Participant{}, ErrNotMember
	}
	return clone(p), nil
}

func (s *MemoryStore) ListParticipants(ctx context.Context, code string) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.membersLocked(code)
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	ids := make([]int64, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}

func (s *MemoryStore) Participants(ctx context.Context, code string) ([]Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.membersLocked(code)
	sort.Slice(members, func(i, j int) bool {
		left, right := strings.ToLower(members[i].FullName), strings.ToLower(members[j].FullName)
		if left == right {
			return members[i].UserID < members[j].UserID
		}
		return left < right
	})
	for i := range members {
		members[i] = clone(members[i])
	}
	return members, nil
}

func (s *MemoryStore) membersLocked(code string) []Participant {
	var members []Participant
	for _, p := range s.participants {
		if p.GameCode == code {
			members = append(members, p)
		}
	}
	return members
}

func (s *MemoryStore) SantaID(ctx context.Context, userID int64) (*int64, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if err == ErrNotMember {
			return nil, nil
		}
		return nil, err
	}
	return p.WardOf, nil
}

func (s *MemoryStore) WardID(ctx context.Context, userID int64) (*int64, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if err == ErrNotMember {
			return nil, nil
		}
		return nil, err
	}
	return p.SantaOf, nil
}

func (s *MemoryStore) GameCodeForUser(ctx context.Context, userID int64) (string, bool, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if err == ErrNotMember {
			return "", false, nil
		}
		return "", false, err
	}
	return p.GameCode, true, nil
}

func (s *MemoryStore) IsDrawDone(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drawDoneLocked(code), nil
}

func (s *MemoryStore) drawDoneLocked(code string) bool {
	if entry, ok := s.games[code]; ok && entry.game.DrawnAt != nil {
		return true
	}
	for _, p := range s.participants {
		if p.GameCode == code && p.WardOf != nil {
			return true
		}
	}
	return false
}

func (s *MemoryStore) Leave(ctx context.Context, userID int64) (LeaveResult, error) {
	if err := ctx.Err(); err != nil {
		return LeaveResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return LeaveResult{}, nil
	}
	result := LeaveResult{Existed: true, GameCode: p.GameCode}
	delete(s.participants, userID)
	if p.SantaOf != nil {
		if ward, found := s.participants[*p.SantaOf]; found {
			ward.WardOf = nil
			s.participants[ward.UserID] = ward
			result.FormerWard = int64Ptr(ward.UserID)
		}
	}
	if p.WardOf != nil {
		if santa, found := s.participants[*p.WardOf]; found {
			santa.SantaOf = nil
			s.participants[santa.UserID] = santa
			result.FormerSanta = int64Ptr(santa.UserID)
		}
	}
	return result, nil
}

func (s *MemoryStore) ApplyAssignment(ctx context.Context, code string, pairs map[int64]int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[code]; !ok {
		return ErrGameNotFound
	}
	if s.drawDoneLocked(code) {
		return ErrAlreadyDone
	}
	members := s.membersLocked(code)
	ids := make([]int64, 0, len(members))
	for _, p := range members {
		ids = append(ids, p.UserID)
	}
	if err := ValidateAssignment(ids, pairs); err != nil {
		return err
	}

	staged := make(map[int64]Participant, len(members))
	for _, p := range members {
		staged[p.UserID] = p
	}
	for santaID, wardID := range pairs {
		santa := staged[santaID]
		santa.SantaOf = int64Ptr(wardID)
		staged[santaID] = santa

		ward := staged[wardID]
		ward.WardOf = int64Ptr(santaID)
		staged[wardID] = ward
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(code); err != nil {
			return fmt.Errorf("commit assignment: %w", err)
		}
	}
	for id, p := range staged {
		s.participants[id] = p
	}
	entry := s.games[code]
	drawnAt := time.Now().UTC()
	entry.game.DrawnAt = &drawnAt
	s.games[code] = entry
	return nil
}

func clone(p Participant) Participant {
	if p.SantaOf != nil {
		p.SantaOf = int64Ptr(*p.SantaOf)
	}
	if p.WardOf != nil {
		p.WardOf = int64Ptr(*p.WardOf)
	}
	return p
}
