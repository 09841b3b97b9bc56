package draw

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"sync"
	"testing"

	"secret-santa/internal/santa"
)

func seededEngine(store santa.Store, seed uint64) *Engine {
	return NewEngine(store, WithRand(rand.New(rand.NewPCG(seed, seed^0x5eed))))
}

func setupGame(t *testing.T, code string, users ...int64) *santa.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := santa.NewMemoryStore()
	if err := store.CreateGame(ctx, code, users[0]); err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, id := range users {
		if err := store.JoinGame(ctx, id, "", fmt.Sprintf("User %d", id), code); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}
	return store
}

func assertDerangement(t *testing.T, store santa.Store, code string) {
	t.Helper()
	ctx := context.Background()
	members, err := store.Participants(ctx, code)
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	inGame := map[int64]bool{}
	for _, p := range members {
		inGame[p.UserID] = true
	}
	received := map[int64]int64{}
	for _, p := range members {
		if p.SantaOf == nil || p.WardOf == nil {
			t.Fatalf("participant %d not paired", p.UserID)
		}
		if *p.SantaOf == p.UserID {
			t.Fatalf("participant %d paired with themselves", p.UserID)
		}
		if !inGame[*p.SantaOf] {
			t.Fatalf("participant %d paired outside the game", p.UserID)
		}
		if prev, dup := received[*p.SantaOf]; dup {
			t.Fatalf("ward %d assigned to %d and %d", *p.SantaOf, prev, p.UserID)
		}
		received[*p.SantaOf] = p.UserID
	}
	for _, p := range members {
		if santaID := received[p.UserID]; santaID != *p.WardOf {
			t.Fatalf("ward_of of %d is %d, expected inverse %d", p.UserID, *p.WardOf, santaID)
		}
	}
}

func TestAssignFourParticipants(t *testing.T) {
	store := setupGame(t, "ABC123", 1, 2, 3, 4)
	engine := seededEngine(store, 1)

	result, err := engine.Assign(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(result.Pairs) != 4 {
		t.Fatalf("expected 4 pairs, got %d", len(result.Pairs))
	}
	if result.Attempts < 1 || result.Attempts > MaxAttempts {
		t.Fatalf("unexpected attempts %d", result.Attempts)
	}
	for santaID, wardID := range result.Pairs {
		if santaID == wardID {
			t.Fatalf("participant %d maps to themselves", santaID)
		}
	}
	assertDerangement(t, store, "ABC123")
}

func TestAssignRequiresThreeParticipants(t *testing.T) {
	store := setupGame(t, "PAIR22", 1, 2)
	engine := seededEngine(store, 2)

	_, err := engine.Assign(context.Background(), "PAIR22")
	if !errors.Is(err, santa.ErrInsufficientParticipants) {
		t.Fatalf("expected insufficient participants, got %v", err)
	}
	done, _ := store.IsDrawDone(context.Background(), "PAIR22")
	if done {
		t.Fatalf("draw must not be recorded")
	}
}

func TestAssignUnknownGame(t *testing.T) {
	engine := seededEngine(santa.NewMemoryStore(), 3)
	if _, err := engine.Assign(context.Background(), "NOPE00"); !errors.Is(err, santa.ErrUnknownGameCode) {
		t.Fatalf("expected unknown game code, got %v", err)
	}
}

func TestAssignTwiceLeavesPairingUntouched(t *testing.T) {
	store := setupGame(t, "TWICE1", 1, 2, 3, 4, 5)
	engine := seededEngine(store, 4)
	ctx := context.Background()

	if _, err := engine.Assign(ctx, "TWICE1"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	before, _ := store.Participants(ctx, "TWICE1")

	_, err := engine.Assign(ctx, "TWICE1")
	if !errors.Is(err, santa.ErrAlreadyDone) {
		t.Fatalf("expected already done, got %v", err)
	}
	after, _ := store.Participants(ctx, "TWICE1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("pairing changed on second draw")
	}
}

func TestAssignNotRepeatedAfterParticipantsLeave(t *testing.T) {
	store := setupGame(t, "ABC123", 1, 2, 3)
	engine := seededEngine(store, 8)
	ctx := context.Background()

	if _, err := engine.Assign(ctx, "ABC123"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	for _, id := range []int64{2, 3} {
		if _, err := store.Leave(ctx, id); err != nil {
			t.Fatalf("leave %d: %v", id, err)
		}
	}
	for _, id := range []int64{4, 5} {
		if err := store.JoinGame(ctx, id, "", "", "ABC123"); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}

	done, err := store.IsDrawDone(ctx, "ABC123")
	if err != nil || !done {
		t.Fatalf("expected game to stay drawn, done=%v err=%v", done, err)
	}
	result, err := engine.Assign(ctx, "ABC123")
	if !errors.Is(err, santa.ErrAlreadyDone) {
		t.Fatalf("expected already done, got pairs=%v err=%v", result.Pairs, err)
	}
	for _, id := range []int64{1, 4, 5} {
		p, err := store.Participant(ctx, id)
		if err != nil {
			t.Fatalf("participant %d: %v", id, err)
		}
		if p.SantaOf != nil || p.WardOf != nil {
			t.Fatalf("participant %d was paired again", id)
		}
	}
	game, err := store.Game(ctx, "ABC123")
	if err != nil || game.DrawnAt == nil {
		t.Fatalf("expected drawn_at on game, got %+v err=%v", game, err)
	}
}

func TestAssignConcurrentDoubleClick(t *testing.T) {
	store := setupGame(t, "CLICK2", 1, 2, 3, 4, 5, 6)
	engine := seededEngine(store, 5)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Assign(ctx, "CLICK2")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, santa.ErrAlreadyDone):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one successful draw, got %d", wins)
	}
	assertDerangement(t, store, "CLICK2")
}

func TestAssignExhaustedAttempts(t *testing.T) {
	store := setupGame(t, "STUCK1", 1, 2, 3)
	engine := seededEngine(store, 6)
	ctx := context.Background()

	calls := 0
	wards, attempts, ok := Derange([]int64{1, 2, 3}, func([]int64) { calls++ }, MaxAttempts)
	if ok || wards != nil {
		t.Fatalf("identity shuffle must never produce a derangement")
	}
	if attempts != MaxAttempts || calls != MaxAttempts {
		t.Fatalf("expected %d attempts, got attempts=%d calls=%d", MaxAttempts, attempts, calls)
	}

	if _, err := engine.Assign(ctx, "STUCK1"); err != nil {
		t.Fatalf("real shuffle should succeed: %v", err)
	}
}

func TestDerangeValidForManySizes(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	shuffle := func(ids []int64) {
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	for n := MinParticipants; n <= 40; n++ {
		users := make([]int64, n)
		for i := range users {
			users[i] = int64(100 + i)
		}
		wards, _, ok := Derange(users, shuffle, MaxAttempts)
		if !ok {
			t.Fatalf("n=%d: no derangement found", n)
		}
		seen := map[int64]bool{}
		for i := range users {
			if users[i] == wards[i] {
				t.Fatalf("n=%d: fixed point at %d", n, i)
			}
			if seen[wards[i]] {
				t.Fatalf("n=%d: ward %d repeated", n, wards[i])
			}
			seen[wards[i]] = true
		}
		if users[0] != 100 {
			t.Fatalf("input slice must not be shuffled in place")
		}
	}
}

func TestDerangeUniformOverFour(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	shuffle := func(ids []int64) {
		rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	}
	users := []int64{1, 2, 3, 4}
	const runs = 9000
	counts := map[[4]int64]int{}
	for i := 0; i < runs; i++ {
		wards, _, ok := Derange(users, shuffle, MaxAttempts)
		if !ok {
			t.Fatalf("run %d: no derangement", i)
		}
		counts[[4]int64{wards[0], wards[1], wards[2], wards[3]}]++
	}
	if len(counts) != 9 {
		t.Fatalf("expected all 9 derangements of 4 elements, saw %d", len(counts))
	}
	for perm, count := range counts {
		if count < 800 || count > 1200 {
			t.Fatalf("derangement %v drawn %d times, expected about %d", perm, count, runs/9)
		}
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	locks := newKeyedMutex()
	unlock := locks.Lock("A")
	unlockB := locks.Lock("B")
	unlock()
	unlockB()
	if len(locks.locks) != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", len(locks.locks))
	}
}
