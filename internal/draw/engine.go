// Package draw computes and commits the Santa/Ward pairing of a game.
package draw

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"

	"secret-santa/internal/metrics"
	"secret-santa/internal/santa"
)

const (
	// MinParticipants rejects a mutual pair between two players.
	MinParticipants = 3
	// MaxAttempts bounds the rejection sampling loop.
	MaxAttempts = 100
)

type Result struct {
	Code     string
	Pairs    map[int64]int64
	Attempts int
}

type Engine struct {
	store santa.Store
	locks *keyedMutex

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Engine)

// WithRand replaces the random source, mainly for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

func NewEngine(store santa.Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		locks: newKeyedMutex(),
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Assign runs the draw for code once. Concurrent calls for the same code are
// serialized; the loser observes ErrAlreadyDone.
func (e *Engine) Assign(ctx context.Context, code string) (Result, error) {
	unlock := e.locks.Lock(code)
	defer unlock()

	if _, err := e.store.Game(ctx, code); err != nil {
		if errors.Is(err, santa.ErrGameNotFound) {
			return Result{}, santa.ErrUnknownGameCode
		}
		return Result{}, fmt.Errorf("load game: %w", err)
	}
	done, err := e.store.IsDrawDone(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("check draw: %w", err)
	}
	if done {
		metrics.Draws.WithLabelValues("already_done").Inc()
		return Result{}, santa.ErrAlreadyDone
	}
	users, err := e.store.ListParticipants(ctx, code)
	if err != nil {
		return Result{}, fmt.Errorf("list participants: %w", err)
	}
	if len(users) < MinParticipants {
		metrics.Draws.WithLabelValues("insufficient").Inc()
		return Result{}, santa.ErrInsufficientParticipants
	}

	wards, attempts, ok := Derange(users, e.shuffle, MaxAttempts)
	metrics.DrawAttempts.Observe(float64(attempts))
	if !ok {
		metrics.Draws.WithLabelValues("assignment_failed").Inc()
		log.Printf("draw exhausted attempts game=%s participants=%d attempts=%d", code, len(users), attempts)
		return Result{}, santa.ErrAssignmentFailed
	}

	pairs := make(map[int64]int64, len(users))
	for i, santaID := range users {
		pairs[santaID] = wards[i]
	}
	if err := e.store.ApplyAssignment(ctx, code, pairs); err != nil {
		if errors.Is(err, santa.ErrAlreadyDone) {
			metrics.Draws.WithLabelValues("already_done").Inc()
			return Result{}, err
		}
		metrics.Draws.WithLabelValues("error").Inc()
		return Result{}, fmt.Errorf("apply assignment: %w", err)
	}
	metrics.Draws.WithLabelValues("success").Inc()
	log.Printf("draw completed game=%s participants=%d attempts=%d", code, len(users), attempts)
	return Result{Code: code, Pairs: pairs, Attempts: attempts}, nil
}

func (e *Engine) shuffle(ids []int64) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	e.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

// Derange shuffles a copy of users until no position keeps its own id, giving
// up after maxAttempts. wards[i] is the ward of users[i].
func Derange(users []int64, shuffle func([]int64), maxAttempts int) (wards []int64, attempts int, ok bool) {
	candidate := make([]int64, len(users))
	copy(candidate, users)
	for attempts = 1; attempts <= maxAttempts; attempts++ {
		shuffle(candidate)
		if hasNoFixedPoint(users, candidate) {
			return candidate, attempts, true
		}
	}
	return nil, maxAttempts, false
}

func hasNoFixedPoint(users, wards []int64) bool {
	for i := range users {
		if users[i] == wards[i] {
			return false
		}
	}
	return true
}
