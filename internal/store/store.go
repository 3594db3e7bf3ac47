// Package store persists proxycop state in a buntdb database.
//
// Key layout:
//
//	config:blacklist          comma-separated forbidden hosts
//	url:<host>:config         JSON URLConfig
//	url:<host>:cooldown       marker whose TTL is the remaining cooldown
//	url:<host>:stats:count    visit counter
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/buntdb"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("store: not found")

// MemoryPath opens an in-memory database.
const MemoryPath = ":memory:"

const blacklistKey = "config:blacklist"

func configKey(host string) string   { return fmt.Sprintf("url:%s:config", host) }
func cooldownKey(host string) string { return fmt.Sprintf("url:%s:cooldown", host) }
func countKey(host string) string    { return fmt.Sprintf("url:%s:stats:count", host) }

// URLConfig is the per-host policy.
type URLConfig struct {
	// Cooldown is the number of minutes a host is locked after a visit.
	Cooldown uint64 `json:"cooldown"`
}

// CooldownDuration returns Cooldown as a duration.
func (c URLConfig) CooldownDuration() time.Duration {
	return time.Duration(c.Cooldown) * time.Minute
}

// Seed holds values written into keys that do not exist yet.
type Seed struct {
	Blacklist []string
	Cooldowns map[string]int
}

// Store is a buntdb-backed state store. It is safe for concurrent use.
type Store struct {
	db     *buntdb.DB
	path   string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (or creates) the database at path. Use MemoryPath for a
// throwaway store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	s := &Store{db: db, path: path}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "store")
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Seed writes the blacklist and cooldown configs that are not set yet.
// Existing values are never overwritten.
func (s *Store) Seed(ctx context.Context, seed Seed) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(blacklistKey); errors.Is(err, buntdb.ErrNotFound) {
			if _, _, err := tx.Set(blacklistKey, joinHosts(seed.Blacklist), nil); err != nil {
				return err
			}
			s.logger.Info("seeded blacklist", "hosts", len(seed.Blacklist))
		}

		for host, minutes := range seed.Cooldowns {
			host = normalizeHost(host)
			if host == "" || minutes < 0 {
				continue
			}
			if _, err := tx.Get(configKey(host)); !errors.Is(err, buntdb.ErrNotFound) {
				continue
			}
			data, err := json.Marshal(URLConfig{Cooldown: uint64(minutes)})
			if err != nil {
				return err
			}
			if _, _, err := tx.Set(configKey(host), string(data), nil); err != nil {
				return err
			}
			s.logger.Info("seeded cooldown", "host", host, "minutes", minutes)
		}
		return nil
	})
}

// Blacklist returns the forbidden hosts in stored order.
func (s *Store) Blacklist(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var hosts []string
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(blacklistKey)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		hosts = splitHosts(val)
		return nil
	})
	return hosts, err
}

// SetBlacklist replaces the blacklist. Hosts are normalized and
// de-duplicated.
func (s *Store) SetBlacklist(ctx context.Context, hosts []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(blacklistKey, joinHosts(hosts), nil)
		return err
	})
}

// AddToBlacklist appends a host. It reports whether the host was added.
func (s *Store) AddToBlacklist(ctx context.Context, host string) (bool, error) {
	return s.editBlacklist(ctx, func(hosts []string) ([]string, bool) {
		host = normalizeHost(host)
		if host == "" || contains(hosts, host) {
			return hosts, false
		}
		return append(hosts, host), true
	})
}

// RemoveFromBlacklist removes a host. It reports whether the host was
// present.
func (s *Store) RemoveFromBlacklist(ctx context.Context, host string) (bool, error) {
	return s.editBlacklist(ctx, func(hosts []string) ([]string, bool) {
		host = normalizeHost(host)
		out := hosts[:0]
		for _, h := range hosts {
			if h != host {
				out = append(out, h)
			}
		}
		return out, len(out) != len(hosts)
	})
}

func (s *Store) editBlacklist(ctx context.Context, edit func([]string) ([]string, bool)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var changed bool
	err := s.db.Update(func(tx *buntdb.Tx) error {
		val, err := tx.Get(blacklistKey)
		if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		var hosts []string
		hosts, changed = edit(splitHosts(val))
		if !changed {
			return nil
		}
		_, _, err = tx.Set(blacklistKey, joinHosts(hosts), nil)
		return err
	})
	return changed, err
}

// IsBlacklisted reports whether host is on the blacklist.
func (s *Store) IsBlacklisted(ctx context.Context, host string) (bool, error) {
	hosts, err := s.Blacklist(ctx)
	if err != nil {
		return false, err
	}
	return contains(hosts, normalizeHost(host)), nil
}

// URLConfig returns the policy of host, or ErrNotFound.
func (s *Store) URLConfig(ctx context.Context, host string) (URLConfig, error) {
	if err := ctx.Err(); err != nil {
		return URLConfig{}, err
	}
	var cfg URLConfig
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(configKey(normalizeHost(host)))
		if errors.Is(err, buntdb.ErrNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(val), &cfg)
	})
	return cfg, err
}

// SetURLConfig stores the policy of host.
func (s *Store) SetURLConfig(ctx context.Context, host string, cfg URLConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(configKey(normalizeHost(host)), string(data), nil)
		return err
	})
}

// DeleteURLConfig removes the policy of host, or returns ErrNotFound.
func (s *Store) DeleteURLConfig(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(configKey(normalizeHost(host)))
		if errors.Is(err, buntdb.ErrNotFound) {
			return ErrNotFound
		}
		return err
	})
}

// URLConfigs returns every configured host policy.
func (s *Store) URLConfigs(ctx context.Context) (map[string]URLConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	configs := make(map[string]URLConfig)
	err := s.db.View(func(tx *buntdb.Tx) error {
		var decodeErr error
		err := tx.AscendKeys("url:*:config", func(key, value string) bool {
			host := strings.TrimSuffix(strings.TrimPrefix(key, "url:"), ":config")
			var cfg URLConfig
			if err := json.Unmarshal([]byte(value), &cfg); err != nil {
				decodeErr = fmt.Errorf("decode %s: %w", key, err)
				return false
			}
			configs[host] = cfg
			return true
		})
		if err != nil {
			return err
		}
		return decodeErr
	})
	return configs, err
}

// StartCooldown locks host for d. A non-positive d is a no-op.
func (s *Store) StartCooldown(ctx context.Context, host string, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(cooldownKey(normalizeHost(host)), "true", &buntdb.SetOptions{
			Expires: true,
			TTL:     d,
		})
		return err
	})
}

// ClearCooldown lifts a pending cooldown.
func (s *Store) ClearCooldown(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(cooldownKey(normalizeHost(host)))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	})
}

// Cooldown returns the time left on host's cooldown. ok is false when no
// cooldown is pending.
func (s *Store) Cooldown(ctx context.Context, host string) (remaining time.Duration, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	err = s.db.View(func(tx *buntdb.Tx) error {
		ttl, err := tx.TTL(cooldownKey(normalizeHost(host)))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if ttl > 0 {
			remaining, ok = ttl, true
		}
		return nil
	})
	return remaining, ok, err
}

// RecordVisit increments the visit counter of host and returns the new
// count.
func (s *Store) RecordVisit(ctx context.Context, host string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count uint64
	err := s.db.Update(func(tx *buntdb.Tx) error {
		key := countKey(normalizeHost(host))
		val, err := tx.Get(key)
		switch {
		case errors.Is(err, buntdb.ErrNotFound):
		case err != nil:
			return err
		default:
			count, err = strconv.ParseUint(val, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid visit count %q for %s: %w", val, key, err)
			}
		}
		count++
		_, _, err = tx.Set(key, strconv.FormatUint(count, 10), nil)
		return err
	})
	return count, err
}

// Visits returns the visit counter of host.
func (s *Store) Visits(ctx context.Context, host string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count uint64
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(countKey(normalizeHost(host)))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		count, err = strconv.ParseUint(val, 10, 64)
		return err
	})
	return count, err
}

// Snapshot writes the whole database to w in buntdb's append-only format.
func (s *Store) Snapshot(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Save(w)
}

// Restore loads a snapshot written by Snapshot. Keys in the snapshot
// overwrite existing keys.
func (s *Store) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Load(r)
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}

func splitHosts(val string) []string {
	var hosts []string
	for _, h := range strings.Split(val, ",") {
		if h = normalizeHost(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func joinHosts(hosts []string) string {
	seen := make(map[string]bool, len(hosts))
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = normalizeHost(h)
		if h == "" || seen[h] {
			continue
		}
		seen[h] = true
		out = append(out, h)
	}
	return strings.Join(out, ",")
}

func contains(hosts []string, host string) bool {
	for _, h := range hosts {
		if h == host {
			return true
		}
	}
	return false
}

// SortedHosts returns the keys of configs in lexical order.
func SortedHosts(configs map[string]URLConfig) []string {
	hosts := make([]string, 0, len(configs))
	for h := range configs {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}
