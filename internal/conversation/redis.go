package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const stateKeyPrefix = "santa:conversation:"

type storedState struct {
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisStateStore keeps conversation states in Redis so a restart does not
// drop users out of a half-finished dialogue. Entries expire after ttl.
type RedisStateStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ StateStore = (*RedisStateStore)(nil)

// NewRedisClient accepts a redis:// URL or a bare host:port address.
func NewRedisClient(addr string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	opt, err := redis.ParseURL(addr)
	if err != nil {
		log.Printf("redis url not parsed, using plain address addr=%s", addr)
		opt = &redis.Options{Addr: addr}
	}
	return redis.NewClient(opt), nil
}

func NewRedisStateStore(client *redis.Client, ttl time.Duration) *RedisStateStore {
	return &RedisStateStore{client: client, ttl: ttl}
}

func stateKey(userID int64) string {
	return stateKeyPrefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStateStore) Get(ctx context.Context, userID int64) (State, error) {
	data, err := s.client.Get(ctx, stateKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Idle, nil
	}
	if err != nil {
		return Idle, fmt.Errorf("get conversation state: %w", err)
	}
	var stored storedState
	if err := json.Unmarshal(data, &stored); err != nil {
		return Idle, fmt.Errorf("decode conversation state: %w", err)
	}
	if !stored.State.Valid() {
		log.Printf("discarding unknown conversation state user_id=%d state=%s", userID, stored.State)
		return Idle, nil
	}
	return stored.State, nil
}

func (s *RedisStateStore) Set(ctx context.Context, userID int64, state State) error {
	if state == Idle {
		if err := s.client.Del(ctx, stateKey(userID)).Err(); err != nil {
			return fmt.Errorf("clear conversation state: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(storedState{State: state, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode conversation state: %w", err)
	}
	if err := s.client.Set(ctx, stateKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set conversation state: %w", err)
	}
	return nil
}
