package store

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedWritesOnlyMissingKeys(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.SetURLConfig(ctx, "news.ycombinator.com", URLConfig{Cooldown: 30}); err != nil {
		t.Fatal(err)
	}

	seed := Seed{
		Blacklist: []string{"reddit.com", "Facebook.com "},
		Cooldowns: map[string]int{"news.ycombinator.com": 1, "example.com": 5},
	}
	if err := s.Seed(ctx, seed); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	hosts, err := s.Blacklist(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"reddit.com", "facebook.com"}; !reflect.DeepEqual(hosts, want) {
		t.Errorf("Blacklist() = %v, want %v", hosts, want)
	}

	cfg, err := s.URLConfig(ctx, "news.ycombinator.com")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cooldown != 30 {
		t.Errorf("existing cooldown = %d, want 30", cfg.Cooldown)
	}
	cfg, err = s.URLConfig(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cooldown != 5 {
		t.Errorf("seeded cooldown = %d, want 5", cfg.Cooldown)
	}

	// A second seed must not bring back a cleared blacklist.
	if err := s.SetBlacklist(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Seed(ctx, seed); err != nil {
		t.Fatal(err)
	}
	hosts, _ = s.Blacklist(ctx)
	if len(hosts) != 0 {
		t.Errorf("Blacklist() after reseed = %v, want empty", hosts)
	}
}

func TestBlacklistEdits(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	added, err := s.AddToBlacklist(ctx, "Example.com")
	if err != nil || !added {
		t.Fatalf("AddToBlacklist() = %v, %v; want true, nil", added, err)
	}
	added, _ = s.AddToBlacklist(ctx, "example.com")
	if added {
		t.Error("AddToBlacklist() of duplicate = true, want false")
	}
	if _, err := s.AddToBlacklist(ctx, "other.org"); err != nil {
		t.Fatal(err)
	}

	ok, err := s.IsBlacklisted(ctx, "EXAMPLE.COM")
	if err != nil || !ok {
		t.Errorf("IsBlacklisted() = %v, %v; want true, nil", ok, err)
	}

	removed, err := s.RemoveFromBlacklist(ctx, "example.com")
	if err != nil || !removed {
		t.Fatalf("RemoveFromBlacklist() = %v, %v; want true, nil", removed, err)
	}
	removed, _ = s.RemoveFromBlacklist(ctx, "example.com")
	if removed {
		t.Error("RemoveFromBlacklist() of absent host = true, want false")
	}

	hosts, _ := s.Blacklist(ctx)
	if want := []string{"other.org"}; !reflect.DeepEqual(hosts, want) {
		t.Errorf("Blacklist() = %v, want %v", hosts, want)
	}
}

func TestURLConfigs(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, err := s.URLConfig(ctx, "missing.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("URLConfig(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.DeleteURLConfig(ctx, "missing.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteURLConfig(missing) error = %v, want ErrNotFound", err)
	}

	s.SetURLConfig(ctx, "b.com", URLConfig{Cooldown: 2})
	s.SetURLConfig(ctx, "a.com", URLConfig{Cooldown: 1})

	configs, err := s.URLConfigs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]URLConfig{"a.com": {Cooldown: 1}, "b.com": {Cooldown: 2}}
	if !reflect.DeepEqual(configs, want) {
		t.Errorf("URLConfigs() = %v, want %v", configs, want)
	}
	if got := SortedHosts(configs); !reflect.DeepEqual(got, []string{"a.com", "b.com"}) {
		t.Errorf("SortedHosts() = %v", got)
	}

	if err := s.DeleteURLConfig(ctx, "a.com"); err != nil {
		t.Fatal(err)
	}
	configs, _ = s.URLConfigs(ctx)
	if _, ok := configs["a.com"]; ok {
		t.Error("a.com still configured after delete")
	}
}

func TestCooldown(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if _, ok, err := s.Cooldown(ctx, "example.com"); err != nil || ok {
		t.Errorf("Cooldown() before start = %v, %v; want false, nil", ok, err)
	}

	if err := s.StartCooldown(ctx, "example.com", time.Minute); err != nil {
		t.Fatal(err)
	}
	remaining, ok, err := s.Cooldown(ctx, "example.com")
	if err != nil || !ok {
		t.Fatalf("Cooldown() = %v, %v; want true, nil", ok, err)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Errorf("remaining = %v, want (0, 1m]", remaining)
	}

	if err := s.ClearCooldown(ctx, "example.com"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Cooldown(ctx, "example.com"); ok {
		t.Error("Cooldown() after clear = true, want false")
	}

	if err := s.StartCooldown(ctx, "zero.com", 0); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Cooldown(ctx, "zero.com"); ok {
		t.Error("zero cooldown should not be pending")
	}
}

func TestCooldownExpires(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	if err := s.StartCooldown(ctx, "example.com", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(120 * time.Millisecond)
	if _, ok, _ := s.Cooldown(ctx, "example.com"); ok {
		t.Error("Cooldown() after expiry = true, want false")
	}
}

func TestRecordVisit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for want := uint64(1); want <= 3; want++ {
		got, err := s.RecordVisit(ctx, "example.com")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("RecordVisit() = %d, want %d", got, want)
		}
	}
	if got, _ := s.Visits(ctx, "example.com"); got != 3 {
		t.Errorf("Visits() = %d, want 3", got)
	}
	if got, _ := s.Visits(ctx, "other.com"); got != 0 {
		t.Errorf("Visits(unvisited) = %d, want 0", got)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	src := openTestStore(t)
	src.SetBlacklist(ctx, []string{"reddit.com"})
	src.SetURLConfig(ctx, "example.com", URLConfig{Cooldown: 3})
	src.RecordVisit(ctx, "example.com")

	var buf bytes.Buffer
	if err := src.Snapshot(ctx, &buf); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	dst := openTestStore(t)
	if err := dst.Restore(ctx, &buf); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if ok, _ := dst.IsBlacklisted(ctx, "reddit.com"); !ok {
		t.Error("restored store lost blacklist")
	}
	if cfg, err := dst.URLConfig(ctx, "example.com"); err != nil || cfg.Cooldown != 3 {
		t.Errorf("restored URLConfig = %+v, %v", cfg, err)
	}
	if n, _ := dst.Visits(ctx, "example.com"); n != 1 {
		t.Errorf("restored Visits = %d, want 1", n)
	}
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Blacklist(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Blacklist() error = %v, want context.Canceled", err)
	}
	if _, err := s.RecordVisit(ctx, "a.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("RecordVisit() error = %v, want context.Canceled", err)
	}
}
