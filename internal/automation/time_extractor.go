package automation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"autoflow/internal/models"
)

// Schedule is one recurring fire time extracted from a workflow trigger
type Schedule struct {
	WorkflowID   string
	TriggerIndex int
	Hour         int
	Minute       int
	Days         []time.Weekday // empty means every day
}

// ID identifies the schedule within the scheduler
func (s Schedule) ID() string {
	return fmt.Sprintf("%s#%d", s.WorkflowID, s.TriggerIndex)
}

// CronExpression renders the schedule in five-field cron syntax
func (s Schedule) CronExpression() string {
	return ConvertToCronExpression(s.Hour, s.Minute, s.Days)
}

// ExtractSchedules collects the fire times of a workflow's TIME triggers and the
// start boundary of its TIME_RANGE triggers. Triggers with unparsable times are skipped.
func ExtractSchedules(wf *models.Workflow) []Schedule {
	var schedules []Schedule
	for i, t := range wf.Triggers {
		var clock string
		var days []string
		switch tr := t.(type) {
		case models.TimeTrigger:
			clock, days = tr.Time, tr.Days
		case models.TimeRangeTrigger:
			clock, days = tr.StartTime, tr.Days
		default:
			continue
		}

		mins, ok := models.ParseClock(clock)
		if !ok {
			continue
		}
		schedules = append(schedules, Schedule{
			WorkflowID:   wf.ID,
			TriggerIndex: i,
			Hour:         mins / 60,
			Minute:       mins % 60,
			Days:         weekdays(days),
		})
	}
	return schedules
}

func weekdays(days []string) []time.Weekday {
	seen := make(map[time.Weekday]bool)
	var out []time.Weekday
	for _, d := range days {
		wd, ok := models.ParseWeekday(d)
		if !ok || seen[wd] {
			continue
		}
		seen[wd] = true
		out = append(out, wd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ConvertToCronExpression builds "M H * * DOW" with DOW "*" when no days are given
func ConvertToCronExpression(hour, minute int, days []time.Weekday) string {
	dow := "*"
	if len(days) > 0 {
		parts := make([]string, len(days))
		for i, d := range days {
			parts[i] = strconv.Itoa(int(d))
		}
		dow = strings.Join(parts, ",")
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, dow)
}
