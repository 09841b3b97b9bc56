package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"secret-santa/internal/santa"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the Postgres-backed santa.Store. Multi-row mutations run in one
// transaction together with the event they log.
type Store struct {
	conn *gorm.DB
}

var _ santa.Store = (*Store)(nil)

func NewStore(conn *gorm.DB) *Store {
	return &Store{conn: conn}
}

type EventPayload struct {
	CreatorID   int64  `json:"creator_id,omitempty"`
	Username    string `json:"username,omitempty"`
	Count       int    `json:"count,omitempty"`
	FormerSanta *int64 `json:"former_santa,omitempty"`
	FormerWard  *int64 `json:"former_ward,omitempty"`
}

func (s *Store) CreateGame(ctx context.Context, code string, creatorID int64) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := Game{Code: code, CreatorID: creatorID}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
		if result.Error != nil {
			return fmt.Errorf("create game: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return appendEvent(tx, code, &creatorID, santa.EventGameCreated, EventPayload{CreatorID: creatorID})
	})
}

func (s *Store) JoinGame(ctx context.Context, userID int64, username, fullName, code string) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Participant{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if existing > 0 {
			return santa.ErrAlreadyMember
		}
		var game Game
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&game).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return santa.ErrUnknownGameCode
			}
			return fmt.Errorf("lock game: %w", err)
		}
		record := Participant{
			UserID:   userID,
			Username: username,
			FullName: fullName,
			GameCode: code,
			JoinedAt: time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			if isUniqueViolation(err) {
				return santa.ErrAlreadyMember
			}
			return fmt.Errorf("insert participant: %w", err)
		}
		return appendEvent(tx, code, &userID, santa.EventParticipantJoined, EventPayload{Username: username})
	})
}

func (s *Store) Game(ctx context.Context, code string) (santa.Game, error) {
	var record Game
	if err := s.conn.WithContext(ctx).Where("code = ?", code).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return santa.Game{}, santa.ErrGameNotFound
		}
		return santa.Game{}, err
	}
	return toGame(record), nil
}

func (s *Store) LatestGameByCreator(ctx context.Context, creatorID int64) (santa.Game, error) {
	var record Game
	err := s.conn.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at desc").
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return santa.Game{}, santa.ErrGameNotFound
		}
		return santa.Game{}, err
	}
	return toGame(record), nil
}

func (s *Store) IsCreator(ctx context.Context, userID int64, code string) (bool, error) {
	var count int64
	err := s.conn.WithContext(ctx).Model(&Game{}).
		Where("code = ? AND creator_id = ?", code, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) SetWish(ctx context.Context, userID int64, wish string) error {
	return s.updateParticipant(ctx, userID, "wish", wish)
}

func (s *Store) Wish(ctx context.Context, userID int64) (string, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if errors.Is(err, santa.ErrNotMember) {
			return "", nil
		}
		return "", err
	}
	return p.Wish, nil
}

func (s *Store) MarkGiftBought(ctx context.Context, userID int64) error {
	return s.updateParticipant(ctx, userID, "gift_bought", true)
}

func (s *Store) updateParticipant(ctx context.Context, userID int64, column string, value any) error {
	result := s.conn.WithContext(ctx).Model(&Participant{}).Where("user_id = ?", userID).Update(column, value)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return santa.ErrNotMember
	}
	return nil
}

func (s *Store) Participant(ctx context.Context, userID int64) (santa.Participant, error) {
	var record Participant
	if err := s.conn.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return santa.Participant{}, santa.ErrNotMember
		}
		return santa.Participant{}, err
	}
	return toParticipant(record), nil
}

func (s *Store) ListParticipants(ctx context.Context, code string) ([]int64, error) {
	var ids []int64
	err := s.conn.WithContext(ctx).Model(&Participant{}).
		Where("game_code = ?", code).
		Order("joined_at, user_id").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *Store) Participants(ctx context.Context, code string) ([]santa.Participant, error) {
	var records []Participant
	err := s.conn.WithContext(ctx).
		Where("game_code = ?", code).
		Order("lower(full_name), user_id").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	list := make([]santa.Participant, 0, len(records))
	for _, record := range records {
		list = append(list, toParticipant(record))
	}
	return list, nil
}

func (s *Store) SantaID(ctx context.Context, userID int64) (*int64, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if errors.Is(err, santa.ErrNotMember) {
			return nil, nil
		}
		return nil, err
	}
	return p.WardOf, nil
}

func (s *Store) WardID(ctx context.Context, userID int64) (*int64, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if errors.Is(err, santa.ErrNotMember) {
			return nil, nil
		}
		return nil, err
	}
	return p.SantaOf, nil
}

func (s *Store) GameCodeForUser(ctx context.Context, userID int64) (string, bool, error) {
	p, err := s.Participant(ctx, userID)
	if err != nil {
		if errors.Is(err, santa.ErrNotMember) {
			return "", false, nil
		}
		return "", false, err
	}
	return p.GameCode, true, nil
}

func (s *Store) IsDrawDone(ctx context.Context, code string) (bool, error) {
	return drawDone(s.conn.WithContext(ctx), code)
}

// drawDone holds once drawn_at is set. Pairings committed before the column
// existed still count through ward_of.
func drawDone(tx *gorm.DB, code string) (bool, error) {
	var count int64
	err := tx.Model(&Game{}).
		Where("code = ?", code).
		Where("(drawn_at IS NOT NULL OR EXISTS (SELECT 1 FROM participants p WHERE p.game_code = games.code AND p.ward_of IS NOT NULL))").
		Count(&count).Error
	return count > 0, err
}

func (s *Store) Leave(ctx context.Context, userID int64) (santa.LeaveResult, error) {
	var result santa.LeaveResult
	err := s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record Participant
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("find participant: %w", err)
		}
		if err := tx.Delete(&Participant{}, "user_id = ?", userID).Error; err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		result = santa.LeaveResult{Existed: true, GameCode: record.GameCode}
		if record.SantaOf != nil {
			updated := tx.Model(&Participant{}).
				Where("user_id = ? AND ward_of = ?", *record.SantaOf, userID).
				Update("ward_of", nil)
			if updated.Error != nil {
				return fmt.Errorf("clear former ward: %w", updated.Error)
			}
			if updated.RowsAffected > 0 {
				result.FormerWard = record.SantaOf
			}
		}
		if record.WardOf != nil {
			updated := tx.Model(&Participant{}).
				Where("user_id = ? AND santa_of = ?", *record.WardOf, userID).
				Update("santa_of", nil)
			if updated.Error != nil {
				return fmt.Errorf("clear former santa: %w", updated.Error)
			}
			if updated.RowsAffected > 0 {
				result.FormerSanta = record.WardOf
			}
		}
		eventType := santa.EventParticipantLeft
		if result.FormerSanta != nil || result.FormerWard != nil {
			eventType = santa.EventAssignmentInvalidated
		}
		return appendEvent(tx, record.GameCode, &userID, eventType, EventPayload{
			FormerSanta: result.FormerSanta,
			FormerWard:  result.FormerWard,
		})
	})
	if err != nil {
		return santa.LeaveResult{}, err
	}
	return result, nil
}

func (s *Store) ApplyAssignment(ctx context.Context, code string, pairs map[int64]int64) error {
	return s.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var game Game
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("code = ?", code).
			First(&game).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return santa.ErrGameNotFound
			}
			return fmt.Errorf("lock game: %w", err)
		}
		done, err := drawDone(tx, code)
		if err != nil {
			return fmt.Errorf("check draw: %w", err)
		}
		if done {
			return santa.ErrAlreadyDone
		}
		var members []int64
		err = tx.Model(&Participant{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("game_code = ?", code).
			Pluck("user_id", &members).Error
		if err != nil {
			return fmt.Errorf("load participants: %w", err)
		}
		if err := santa.ValidateAssignment(members, pairs); err != nil {
			return err
		}
		for santaID, wardID := range pairs {
			if err := tx.Model(&Participant{}).Where("user_id = ?", santaID).Update("santa_of", wardID).Error; err != nil {
				return fmt.Errorf("set santa_of for %d: %w", santaID, err)
			}
			if err := tx.Model(&Participant{}).Where("user_id = ?", wardID).Update("ward_of", santaID).Error; err != nil {
				return fmt.Errorf("set ward_of for %d: %w", wardID, err)
			}
		}
		if err := tx.Model(&Game{}).Where("code = ?", code).Update("drawn_at", time.Now().UTC()).Error; err != nil {
			return fmt.Errorf("mark game drawn: %w", err)
		}
		return appendEvent(tx, code, nil, santa.EventDrawCompleted, EventPayload{Count: len(pairs)})
	})
}

// Events returns the newest events of a game first.
func (s *Store) Events(ctx context.Context, code string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []Event
	err := s.conn.WithContext(ctx).
		Where("game_code = ?", code).
		Order("created_at desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func appendEvent(tx *gorm.DB, code string, userID *int64, eventType santa.EventType, payload EventPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := Event{
		ID:        uuid.New(),
		GameCode:  code,
		UserID:    userID,
		Type:      string(eventType),
		Payload:   datatypes.JSON(data),
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Create(&event).Error; err != nil {
		return fmt.Errorf("append %s event: %w", eventType, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func toGame(record Game) santa.Game {
	return santa.Game{
		Code:      record.Code,
		CreatorID: record.CreatorID,
		CreatedAt: record.CreatedAt,
		DrawnAt:   record.DrawnAt,
	}
}

func toParticipant(record Participant) santa.Participant {
	return santa.Participant{
		UserID:     record.UserID,
		Username:   record.Username,
		FullName:   record.FullName,
		GameCode:   record.GameCode,
		Wish:       record.Wish,
		SantaOf:    record.SantaOf,
		WardOf:     record.WardOf,
		GiftBought: record.GiftBought,
		JoinedAt:   record.JoinedAt,
	}
}
