package compliance

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSettingsValidate(t *testing.T) {
	ok := DefaultSettings()
	if err := ok.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cases := []struct {
		name string
		mut  func(s *Settings)
	}{
		{"bad start", func(s *Settings) { s.CallingHoursStart = "25:00" }},
		{"bad end", func(s *Settings) { s.CallingHoursEnd = "8pm" }},
		{"empty window", func(s *Settings) { s.CallingHoursStart = "09:00"; s.CallingHoursEnd = "09:00" }},
		{"negative limit", func(s *Settings) { s.DailyAttemptsLimit = -1 }},
	}
	for _, tc := range cases {
		s := DefaultSettings()
		tc.mut(&s)
		if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("%s: err = %v, want ErrInvalidSettings", tc.name, err)
		}
	}

	overnight := DefaultSettings()
	overnight.CallingHoursStart = "20:00"
	overnight.CallingHoursEnd = "06:00"
	if err := overnight.Validate(); err != nil {
		t.Errorf("overnight window rejected: %v", err)
	}
}

func TestMemorySettingsVersioning(t *testing.T) {
	store := NewMemorySettings()
	ctx := context.Background()

	first, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if first.Version != 1 {
		t.Fatalf("initial version = %d, want 1", first.Version)
	}

	first.DailyAttemptsLimit = 5
	saved, err := store.Put(ctx, first)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.Version != 2 {
		t.Fatalf("version after put = %d, want 2", saved.Version)
	}

	bad := saved
	bad.CallingHoursStart = "nope"
	if _, err := store.Put(ctx, bad); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("invalid put: err = %v", err)
	}
	// The store still serves the last valid version.
	cur, _ := store.Get(ctx)
	if cur.Version != 2 || cur.DailyAttemptsLimit != 5 {
		t.Fatalf("current = %+v", cur)
	}
}

func TestCachedSettingsTTL(t *testing.T) {
	inner := NewMemorySettings()
	cached := NewCachedSettings(inner, 50*time.Millisecond)
	ctx := context.Background()

	before, err := cached.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	// Write behind the cache's back.
	s, _ := inner.Get(ctx)
	s.DailyAttemptsLimit = 9
	if _, err := inner.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Within the TTL the stale read is expected.
	within, err := cached.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if within.Version != before.Version {
		t.Fatalf("cache missed within TTL: %+v", within)
	}

	time.Sleep(60 * time.Millisecond)
	after, err := cached.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.DailyAttemptsLimit != 9 {
		t.Fatalf("stale read after TTL: %+v", after)
	}
}

func TestCachedSettingsPutRefreshesImmediately(t *testing.T) {
	inner := NewMemorySettings()
	cached := NewCachedSettings(inner, time.Hour)
	ctx := context.Background()

	if _, err := cached.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	s, _ := inner.Get(ctx)
	s.TotalAttemptsLimit = 42
	if _, err := cached.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// A write through the cache must be visible at once, TTL or not.
	got, err := cached.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.TotalAttemptsLimit != 42 {
		t.Fatalf("got = %+v, want write-through visible", got)
	}
}
