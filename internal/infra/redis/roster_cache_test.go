package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"spelling-assessment-service/internal/domain"
)

func TestRosterCacheFillsAndHits(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	loader := &countingRosterLoader{roster: sampleRoster()}
	cache := NewRosterCache(client, loader, time.Minute)
	ctx := context.Background()

	roster, err := cache.GetRoster(ctx, "round-1")
	if err != nil {
		t.Fatalf("get roster: %v", err)
	}
	if len(roster.Words) != 1 || roster.Words[0].Text != "boom" {
		t.Fatalf("unexpected roster: %+v", roster)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}
	if !mr.Exists("round:round-1:roster") {
		t.Fatalf("expected roster cached in redis")
	}

	if _, err := cache.GetRoster(ctx, "round-1"); err != nil {
		t.Fatalf("get roster 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	cache.Invalidate(ctx, "round-1")
	if mr.Exists("round:round-1:roster") {
		t.Fatalf("expected cache key removed")
	}
	if _, err := cache.GetRoster(ctx, "round-1"); err != nil {
		t.Fatalf("get roster 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

type countingRosterLoader struct {
	roster domain.Roster
	calls  int
}

func (l *countingRosterLoader) LoadRoster(_ context.Context, roundID string) (domain.Roster, error) {
	l.calls++
	if roundID != l.roster.Round.ID {
		return domain.Roster{}, domain.ErrRoundNotFound
	}
	return l.roster, nil
}

func sampleRoster() domain.Roster {
	return domain.Roster{
		Round: domain.TestRound{ID: "round-1", TenantID: "demo", Name: "Dictation 1"},
		Rules: []domain.SpellingRule{
			{ID: "r1", Code: "B1", Description: "open syllable"},
		},
		Words: []domain.Word{
			{ID: "w1", Text: "boom", RuleIDs: []string{"r1"}, TestRoundID: "round-1"},
		},
		Students: []domain.Student{
			{ID: "s1", Name: "Alice", TestRoundID: "round-1"},
		},
	}
}
