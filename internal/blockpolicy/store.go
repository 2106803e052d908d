package blockpolicy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Policy is an immutable snapshot of the block-list. Never mutate a returned Policy.
type Policy struct {
	Enabled  bool
	Packages map[string]struct{}
	Until    time.Time // zero means no expiry
}

// Active reports whether the policy blocks anything at t
func (p *Policy) Active(t time.Time) bool {
	return p.Enabled && (p.Until.IsZero() || t.Before(p.Until))
}

// PackageList returns the blocked packages sorted
func (p *Policy) PackageList() []string {
	out := make([]string, 0, len(p.Packages))
	for pkg := range p.Packages {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out
}

type persisted struct {
	Enabled  bool      `json:"enabled"`
	Packages []string  `json:"packages"`
	Until    time.Time `json:"until,omitempty"`
}

// Store holds the current policy. Readers load the snapshot without locking;
// writers are serialised and publish a fresh snapshot in one swap.
type Store struct {
	current atomic.Pointer[Policy]
	mu      sync.Mutex

	rdb    *redis.Client // optional
	key    string
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore creates an empty store. rdb may be nil to keep the policy in memory only.
func NewStore(rdb *redis.Client, key string, logger *zap.Logger) *Store {
	s := &Store{rdb: rdb, key: key, clock: time.Now, logger: logger}
	s.current.Store(&Policy{Packages: map[string]struct{}{}})
	return s
}

// Load restores the persisted policy, if any
func (s *Store) Load(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load block policy: %w", err)
	}
	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("decode block policy: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Store(newPolicy(p.Enabled, p.Packages, p.Until))
	s.logger.Info("block policy restored", zap.Int("packages", len(p.Packages)), zap.Bool("enabled", p.Enabled))
	return nil
}

func newPolicy(enabled bool, pkgs []string, until time.Time) *Policy {
	set := make(map[string]struct{}, len(pkgs))
	for _, p := range pkgs {
		if p != "" {
			set[p] = struct{}{}
		}
	}
	return &Policy{Enabled: enabled, Packages: set, Until: until}
}

// Block replaces the block-list with pkgs. A nil duration blocks until Unblock.
func (s *Store) Block(ctx context.Context, pkgs []string, duration *time.Duration) error {
	var until time.Time
	if duration != nil {
		until = s.clock().Add(*duration)
	}
	return s.swap(ctx, newPolicy(true, pkgs, until))
}

// Unblock disables the block-list
func (s *Store) Unblock(ctx context.Context) error {
	return s.swap(ctx, newPolicy(false, nil, time.Time{}))
}

func (s *Store) swap(ctx context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rdb != nil {
		raw, err := json.Marshal(persisted{Enabled: p.Enabled, Packages: p.PackageList(), Until: p.Until})
		if err != nil {
			return fmt.Errorf("encode block policy: %w", err)
		}
		if err := s.rdb.Set(ctx, s.key, raw, 0).Err(); err != nil {
			return fmt.Errorf("persist block policy: %w", err)
		}
	}
	s.current.Store(p)
	return nil
}

// Snapshot returns the current policy
func (s *Store) Snapshot() *Policy {
	return s.current.Load()
}

// IsBlocked reports whether pkg is blocked right now
func (s *Store) IsBlocked(pkg string) bool {
	p := s.current.Load()
	if !p.Active(s.clock()) {
		return false
	}
	_, ok := p.Packages[pkg]
	return ok
}
