package redis

import (
	"context"
	"sync"
	"time"

	"spelling-assessment-service/internal/app"
	"github.com/redis/go-redis/v9"
)

// RoundStore is a Redis-aware implementation of RoundRepository.
// Notes:
//   - It still keeps a local in-memory map of rounds to reuse the existing
//     in-process broadcast and locking logic.
//   - Redis marks round liveness (and could be extended to share snapshots
//     or route cross-instance pub/sub).
//   - For true distribution you'd pair this with a projector that fans out
//     progress updates between instances.
type RoundStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rounds map[string]*app.Round
}

func NewRoundStore(client *redis.Client, ttl time.Duration) *RoundStore {
	return &RoundStore{
		client: client,
		ttl:    ttl,
		rounds: make(map[string]*app.Round),
	}
}

func (s *RoundStore) GetOrCreate(roundID string) *app.Round {
	s.mu.Lock()
	defer s.mu.Unlock()
	if round, ok := s.rounds[roundID]; ok {
		return round
	}
	round := app.NewRound(roundID)
	s.rounds[roundID] = round
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(roundID), "1", s.ttl).Err()
	return round
}

func (s *RoundStore) Get(roundID string) (*app.Round, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	round, ok := s.rounds[roundID]
	return round, ok
}

func (s *RoundStore) DeleteIfEmpty(roundID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	round, ok := s.rounds[roundID]
	if !ok {
		return
	}
	if round.IsIdle() {
		delete(s.rounds, roundID)
		_ = s.client.Del(context.Background(), s.key(roundID)).Err()
	}
}

func (s *RoundStore) key(roundID string) string {
	return "round:session:" + roundID
}
