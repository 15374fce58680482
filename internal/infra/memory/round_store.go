package memory

import (
	"sync"

	"spelling-assessment-service/internal/app"
)

// RoundStore is an in-memory implementation of app.RoundRepository.
type RoundStore struct {
	mu     sync.RWMutex
	rounds map[string]*app.Round
}

func NewRoundStore() *RoundStore {
	return &RoundStore{
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
	}
}
