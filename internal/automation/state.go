package automation

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateTracker remembers which triggers of an AND workflow have been satisfied
// by earlier events. Each mark carries its own expiry.
type StateTracker struct {
	rdb   *redis.Client
	clock func() time.Time
}

// NewStateTracker creates a Redis-backed tracker
func NewStateTracker(rdb *redis.Client) *StateTracker {
	return &StateTracker{rdb: rdb, clock: time.Now}
}

func stateKey(workflowID string) string {
	return fmt.Sprintf("workflow:%s:satisfied", workflowID)
}

// satisfyScript marks ARGV[5..] with expiry ARGV[2], then checks that every
// index in [0, ARGV[4]) holds a mark later than ARGV[1]. A complete set is
// deleted in the same call so exactly one caller observes it.
var satisfyScript = redis.NewScript(`
for i = 5, #ARGV do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[2])
end
local now = tonumber(ARGV[1])
for i = 0, tonumber(ARGV[4]) - 1 do
	local expiry = redis.call('HGET', KEYS[1], tostring(i))
	if not expiry or tonumber(expiry) <= now then
		redis.call('PEXPIRE', KEYS[1], ARGV[3])
		return 0
	end
end
redis.call('DEL', KEYS[1])
return 1
`)

// Satisfy marks idxs of the workflow as satisfied for ttl and reports whether
// all n triggers now hold a live mark. The check and the clearing of a
// complete set are one atomic step in Redis.
func (s *StateTracker) Satisfy(ctx context.Context, workflowID string, idxs []int, n int, ttl time.Duration) (bool, error) {
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	now := s.clock()
	args := make([]any, 0, 4+len(idxs))
	args = append(args, now.UnixMilli(), now.Add(ttl).UnixMilli(), ttl.Milliseconds(), n)
	for _, idx := range idxs {
		args = append(args, strconv.Itoa(idx))
	}

	complete, err := satisfyScript.Run(ctx, s.rdb, []string{stateKey(workflowID)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("satisfy triggers of %s: %w", workflowID, err)
	}
	return complete == 1, nil
}

// Satisfied returns the trigger indexes whose marks have not expired
func (s *StateTracker) Satisfied(ctx context.Context, workflowID string) (map[int]bool, error) {
	fields, err := s.rdb.HGetAll(ctx, stateKey(workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load trigger state of %s: %w", workflowID, err)
	}
	now := s.clock().UnixMilli()
	out := make(map[int]bool, len(fields))
	for field, value := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		expiry, err := strconv.ParseInt(value, 10, 64)
		if err != nil || expiry <= now {
			continue
		}
		out[idx] = true
	}
	return out, nil
}

// Reset forgets every mark of the workflow
func (s *StateTracker) Reset(ctx context.Context, workflowID string) error {
	if err := s.rdb.Del(ctx, stateKey(workflowID)).Err(); err != nil {
		return fmt.Errorf("reset trigger state of %s: %w", workflowID, err)
	}
	return nil
}

// MemoryStateTracker is an in-process tracker for single-node runs and tests
type MemoryStateTracker struct {
	mu    sync.Mutex
	marks map[string]map[int]time.Time
	clock func() time.Time
}

// NewMemoryStateTracker creates an empty in-memory tracker
func NewMemoryStateTracker() *MemoryStateTracker {
	return &MemoryStateTracker{marks: make(map[string]map[int]time.Time), clock: time.Now}
}

// Satisfy marks idxs and reports whether all n triggers hold a live mark,
// clearing the set when they do
func (m *MemoryStateTracker) Satisfy(_ context.Context, workflowID string, idxs []int, n int, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	marks := m.marks[workflowID]
	if marks == nil {
		marks = make(map[int]time.Time)
		m.marks[workflowID] = marks
	}
	for _, idx := range idxs {
		marks[idx] = now.Add(ttl)
	}
	for i := 0; i < n; i++ {
		if expiry, ok := marks[i]; !ok || !expiry.After(now) {
			return false, nil
		}
	}
	delete(m.marks, workflowID)
	return true, nil
}

// Satisfied returns the trigger indexes whose marks have not expired
func (m *MemoryStateTracker) Satisfied(_ context.Context, workflowID string) (map[int]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	out := make(map[int]bool)
	for idx, expiry := range m.marks[workflowID] {
		if expiry.After(now) {
			out[idx] = true
		}
	}
	return out, nil
}

// Reset forgets every mark of the workflow
func (m *MemoryStateTracker) Reset(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.marks, workflowID)
	return nil
}
