//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/pgEdge/cstore-insights/internal/census"
	"github.com/pgEdge/cstore-insights/internal/config"
	"github.com/pgEdge/cstore-insights/internal/testutil"
)

func TestRedisMemo(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)
	ctx := context.Background()

	m, err := DialRedisMemo(ctx, config.RedisConfig{Address: addr}, time.Minute)
	if err != nil {
		t.Fatalf("DialRedisMemo failed: %v", err)
	}
	t.Cleanup(func() {
		m.Clear(ctx)
		m.Close()
	})

	want := census.Geography{State: "16", County: "001", Tract: "000100"}
	if err := m.Set(ctx, "geocode:43.600000,-116.200000", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var got census.Geography
	found, err := m.Get(ctx, "geocode:43.600000,-116.200000", &got)
	if err != nil || !found {
		t.Fatalf("Get: found = %v, err = %v", found, err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	found, err = m.Get(ctx, "geocode:43.600000,-116.200000", &got)
	if err != nil || found {
		t.Errorf("After Clear: found = %v, err = %v", found, err)
	}
}

func TestNewMemoRedis(t *testing.T) {
	addr := testutil.SkipIfNoRedis(t)

	m, closeFn, err := NewMemo(context.Background(), config.EnrichConfig{
		Memo:    config.MemoRedis,
		MemoTTL: 60,
		Redis:   config.RedisConfig{Address: addr},
	})
	if err != nil {
		t.Fatalf("NewMemo failed: %v", err)
	}
	defer closeFn()
	if _, ok := m.(*RedisMemo); !ok {
		t.Errorf("Expected *RedisMemo, got %T", m)
	}
}
