package automation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"autoflow/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTracker(t *testing.T) (*StateTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStateTracker(rdb), mr
}

func TestStateTrackerSatisfyAndReset(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setupTracker(t)

	done, err := tracker.Satisfy(ctx, "wf-1", []int{0, 2}, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, done)
	done, err = tracker.Satisfy(ctx, "wf-2", []int{1}, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, done)

	got, err := tracker.Satisfied(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{0: true, 2: true}, got)

	require.NoError(t, tracker.Reset(ctx, "wf-1"))
	got, err = tracker.Satisfied(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = tracker.Satisfied(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true}, got)
}

func TestStateTrackerCompleteSetIsCleared(t *testing.T) {
	ctx := context.Background()
	tracker, mr := setupTracker(t)

	done, err := tracker.Satisfy(ctx, "wf", []int{1}, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, done)

	done, err = tracker.Satisfy(ctx, "wf", []int{0}, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, done)
	assert.False(t, mr.Exists("workflow:wf:satisfied"))

	// the next event starts from scratch
	done, err = tracker.Satisfy(ctx, "wf", []int{0}, 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStateTrackerPerTriggerExpiry(t *testing.T) {
	ctx := context.Background()
	tracker, _ := setupTracker(t)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tracker.clock = func() time.Time { return now }

	_, err := tracker.Satisfy(ctx, "wf", []int{0}, 3, time.Minute)
	require.NoError(t, err)
	_, err = tracker.Satisfy(ctx, "wf", []int{1}, 3, 10*time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	got, err := tracker.Satisfied(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{1: true}, got)

	// trigger 0 expired, so satisfying 2 does not complete the set
	done, err := tracker.Satisfy(ctx, "wf", []int{2}, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStateTrackerKeyExpires(t *testing.T) {
	ctx := context.Background()
	tracker, mr := setupTracker(t)

	_, err := tracker.Satisfy(ctx, "wf", []int{0}, 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("workflow:wf:satisfied"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("workflow:wf:satisfied"))
}

func TestStateTrackerConcurrentHalves(t *testing.T) {
	tracker, _ := setupTracker(t)
	assertSingleFire(t, tracker)
}

func TestMemoryStateTracker(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStateTracker()
	now := time.Now()
	m.clock = func() time.Time { return now }

	done, err := m.Satisfy(ctx, "wf", []int{3}, 4, time.Second)
	require.NoError(t, err)
	assert.False(t, done)
	got, _ := m.Satisfied(ctx, "wf")
	assert.Equal(t, map[int]bool{3: true}, got)

	now = now.Add(2 * time.Second)
	got, _ = m.Satisfied(ctx, "wf")
	assert.Empty(t, got)

	require.NoError(t, m.Reset(ctx, "wf"))
	assertSingleFire(t, NewMemoryStateTracker())
}

type satisfier interface {
	Satisfy(ctx context.Context, workflowID string, idxs []int, n int, ttl time.Duration) (bool, error)
}

// assertSingleFire races the two halves of a two-trigger set and expects
// exactly one caller to see it complete
func assertSingleFire(t *testing.T, s satisfier) {
	t.Helper()
	ctx := context.Background()
	for round := 0; round < 50; round++ {
		id := fmt.Sprintf("wf-%d", round)
		start := make(chan struct{})
		results := make(chan bool, 2)
		var wg sync.WaitGroup
		for idx := 0; idx < 2; idx++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				<-start
				done, err := s.Satisfy(ctx, id, []int{idx}, 2, time.Minute)
				assert.NoError(t, err)
				results <- done
			}(idx)
		}
		close(start)
		wg.Wait()
		close(results)

		fired := 0
		for done := range results {
			if done {
				fired++
			}
		}
		require.Equal(t, 1, fired, "round %d", round)
	}
}

func TestExtractSchedules(t *testing.T) {
	wf := &models.Workflow{
		ID: "wf-9",
		Triggers: []models.Trigger{
			models.WiFiTrigger{State: models.WiFiOn},
			models.TimeTrigger{Time: "07:05", Days: []string{"FRIDAY", "monday", "MONDAY"}},
			models.TimeRangeTrigger{StartTime: "22:30", EndTime: "06:00"},
			models.TimeTrigger{Time: "bogus"},
		},
	}

	schedules := ExtractSchedules(wf)
	require.Len(t, schedules, 2)

	assert.Equal(t, 1, schedules[0].TriggerIndex)
	assert.Equal(t, "wf-9#1", schedules[0].ID())
	assert.Equal(t, "5 7 * * 1,5", schedules[0].CronExpression())

	assert.Equal(t, 2, schedules[1].TriggerIndex)
	assert.Equal(t, "30 22 * * *", schedules[1].CronExpression())
}

func TestConvertToCronExpression(t *testing.T) {
	assert.Equal(t, "0 0 * * *", ConvertToCronExpression(0, 0, nil))
	assert.Equal(t, "59 23 * * 0,6", ConvertToCronExpression(23, 59, []time.Weekday{time.Sunday, time.Saturday}))
}
