package infra

import (
	"context"
	"testing"

	"vault-gateway/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByScopeRouteAndKey(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	events := []domain.StatsEvent{
		{Key: "a", Allowed: true, Method: "GET", Path: "/x"},
		{Key: "a", Allowed: false, Method: "GET", Path: "/x"},
		{Scope: domain.ScopeConcurrency, Key: "b", Allowed: false, Method: "POST", Path: "/y"},
	}
	for _, ev := range events {
		if err := s.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	if got := s.Total(); got != (Counters{Allowed: 1, Denied: 2}) {
		t.Fatalf("unexpected total %+v", got)
	}
	if got := s.Scope(domain.ScopeRateLimit); got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected ratelimit scope %+v", got)
	}
	if got := s.Scope(domain.ScopeConcurrency); got != (Counters{Denied: 1}) {
		t.Fatalf("unexpected concurrency scope %+v", got)
	}
	if got := s.ByRoute()["concurrency POST /y"]; got.Denied != 1 {
		t.Fatalf("expected route counter for concurrency POST /y, got %+v", s.ByRoute())
	}
	if got := s.ByKey()["a"]; got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected key counter %+v", got)
	}
}

func TestMemoryStatsStore_SkipsKeysUnlessTracked(t *testing.T) {
	s := NewMemoryStatsStore()
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "a", Allowed: true})
	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key counters, got %+v", s.ByKey())
	}
}
