package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"secret-santa/internal/config"
	"secret-santa/internal/santa"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	cfg := config.Default()
	cfg.DatabaseURL = dsn
	conn, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(conn)
}

// uniqueCode keeps parallel test runs on a shared database apart.
func uniqueCode(t *testing.T) (string, int64) {
	t.Helper()
	n := time.Now().UnixNano()
	return fmt.Sprintf("T%05d", n%100000), n % 1_000_000_000
}

func TestStoreJoinAndAssign(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	users := []int64{base + 1, base + 2, base + 3}

	require.NoError(t, store.CreateGame(ctx, code, users[0]))
	require.NoError(t, store.CreateGame(ctx, code, users[1]))
	for _, id := range users {
		require.NoError(t, store.JoinGame(ctx, id, "", fmt.Sprintf("user %d", id), code))
	}
	t.Cleanup(func() {
		for _, id := range users {
			_, _ = store.Leave(context.Background(), id)
		}
	})

	require.ErrorIs(t, store.JoinGame(ctx, users[0], "", "", code), santa.ErrAlreadyMember)
	require.ErrorIs(t, store.JoinGame(ctx, base+9, "", "", "ZZZZZZ"), santa.ErrUnknownGameCode)

	isCreator, err := store.IsCreator(ctx, users[0], code)
	require.NoError(t, err)
	assert.True(t, isCreator)

	bad := map[int64]int64{users[0]: users[0], users[1]: users[2], users[2]: users[1]}
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, bad), santa.ErrAssignmentFailed)
	done, err := store.IsDrawDone(ctx, code)
	require.NoError(t, err)
	assert.False(t, done)

	pairs := map[int64]int64{users[0]: users[1], users[1]: users[2], users[2]: users[0]}
	require.NoError(t, store.ApplyAssignment(ctx, code, pairs))
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, pairs), santa.ErrAlreadyDone)

	for santaID, wardID := range pairs {
		ward, err := store.WardID(ctx, santaID)
		require.NoError(t, err)
		require.NotNil(t, ward)
		assert.Equal(t, wardID, *ward)
	}

	result, err := store.Leave(ctx, users[1])
	require.NoError(t, err)
	assert.True(t, result.Existed)
	require.NotNil(t, result.FormerSanta)
	assert.Equal(t, users[0], *result.FormerSanta)
	ward, err := store.WardID(ctx, users[0])
	require.NoError(t, err)
	assert.Nil(t, ward)

	events, err := store.Events(ctx, code, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestStoreConcurrentAssignOnlyOneWins(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	users := []int64{base + 11, base + 12, base + 13}
	require.NoError(t, store.CreateGame(ctx, code, users[0]))
	for _, id := range users {
		require.NoError(t, store.JoinGame(ctx, id, "", "", code))
	}
	t.Cleanup(func() {
		for _, id := range users {
			_, _ = store.Leave(context.Background(), id)
		}
	})

	pairs := map[int64]int64{users[0]: users[1], users[1]: users[2], users[2]: users[0]}
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ApplyAssignment(ctx, code, pairs)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, santa.ErrAlreadyDone)
	}
	assert.Equal(t, 1, wins)
}

func joinAll(t *testing.T, store *Store, code string, users []int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateGame(ctx, code, users[0]))
	for _, id := range users {
		require.NoError(t, store.JoinGame(ctx, id, "", fmt.Sprintf("user %d", id), code))
	}
	t.Cleanup(func() {
		for _, id := range users {
			_, _ = store.Leave(context.Background(), id)
		}
	})
}

func assertNoPairs(t *testing.T, store *Store, code string) {
	t.Helper()
	ctx := context.Background()
	members, err := store.Participants(ctx, code)
	require.NoError(t, err)
	require.NotEmpty(t, members)
	for _, p := range members {
		assert.Nil(t, p.SantaOf, "participant %d", p.UserID)
		assert.Nil(t, p.WardOf, "participant %d", p.UserID)
	}
	done, err := store.IsDrawDone(ctx, code)
	require.NoError(t, err)
	assert.False(t, done)
	game, err := store.Game(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, game.DrawnAt)
}

func TestStoreLeaveAfterDrawClearsPointers(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	users := []int64{base + 21, base + 22, base + 23, base + 24}
	joinAll(t, store, code, users)

	pairs := map[int64]int64{users[0]: users[1], users[1]: users[2], users[2]: users[3], users[3]: users[0]}
	require.NoError(t, store.ApplyAssignment(ctx, code, pairs))

	result, err := store.Leave(ctx, users[1])
	require.NoError(t, err)
	assert.True(t, result.Existed)
	require.NotNil(t, result.FormerSanta)
	require.NotNil(t, result.FormerWard)
	assert.Equal(t, users[0], *result.FormerSanta)
	assert.Equal(t, users[2], *result.FormerWard)

	ward, err := store.WardID(ctx, users[0])
	require.NoError(t, err)
	assert.Nil(t, ward)
	santaID, err := store.SantaID(ctx, users[2])
	require.NoError(t, err)
	assert.Nil(t, santaID)
	ward, err = store.WardID(ctx, users[2])
	require.NoError(t, err)
	require.NotNil(t, ward)
	assert.Equal(t, users[3], *ward)

	done, err := store.IsDrawDone(ctx, code)
	require.NoError(t, err)
	assert.True(t, done)
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, map[int64]int64{users[0]: users[2], users[2]: users[3], users[3]: users[0]}), santa.ErrAlreadyDone)

	events, err := store.Events(ctx, code, 10)
	require.NoError(t, err)
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, string(santa.EventAssignmentInvalidated))

	again, err := store.Leave(ctx, users[1])
	require.NoError(t, err)
	assert.False(t, again.Existed)
}

func TestStoreDrawStaysDoneAfterEveryoneLeaves(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	first := []int64{base + 31, base + 32, base + 33}
	joinAll(t, store, code, first)
	require.NoError(t, store.ApplyAssignment(ctx, code, map[int64]int64{first[0]: first[1], first[1]: first[2], first[2]: first[0]}))
	for _, id := range first {
		_, err := store.Leave(ctx, id)
		require.NoError(t, err)
	}

	second := []int64{base + 34, base + 35, base + 36}
	for _, id := range second {
		require.NoError(t, store.JoinGame(ctx, id, "", "", code))
	}
	t.Cleanup(func() {
		for _, id := range second {
			_, _ = store.Leave(context.Background(), id)
		}
	})
	done, err := store.IsDrawDone(ctx, code)
	require.NoError(t, err)
	assert.True(t, done)
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, map[int64]int64{second[0]: second[1], second[1]: second[2], second[2]: second[0]}), santa.ErrAlreadyDone)
}

func TestStoreRejectedAssignmentWritesNothing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	users := []int64{base + 41, base + 42, base + 43, base + 44}
	joinAll(t, store, code, users)

	missingMember := map[int64]int64{users[0]: users[1], users[1]: users[2], users[2]: users[0]}
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, missingMember), santa.ErrAssignmentFailed)
	assertNoPairs(t, store, code)
}

func TestStoreApplyAssignmentFailureRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	code, base := uniqueCode(t)
	users := []int64{base + 51, base + 52, base + 53}
	joinAll(t, store, code, users)

	var armed atomic.Bool
	injected := errors.New("connection lost")
	err := store.conn.Callback().Update().Before("gorm:update").Register("santa_test:fail_ward_of", func(tx *gorm.DB) {
		if !armed.Load() {
			return
		}
		if dest, ok := tx.Statement.Dest.(map[string]interface{}); ok {
			if _, ok := dest["ward_of"]; ok {
				_ = tx.AddError(injected)
			}
		}
	})
	require.NoError(t, err)

	pairs := map[int64]int64{users[0]: users[1], users[1]: users[2], users[2]: users[0]}
	armed.Store(true)
	require.ErrorIs(t, store.ApplyAssignment(ctx, code, pairs), injected)
	armed.Store(false)
	assertNoPairs(t, store, code)

	require.NoError(t, store.ApplyAssignment(ctx, code, pairs))
	done, err := store.IsDrawDone(ctx, code)
	require.NoError(t, err)
	assert.True(t, done)
}
