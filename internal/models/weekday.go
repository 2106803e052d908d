package models

import (
	"strings"
	"time"
)

var weekdays = map[string]time.Weekday{
	"SUNDAY":    time.Sunday,
	"MONDAY":    time.Monday,
	"TUESDAY":   time.Tuesday,
	"WEDNESDAY": time.Wednesday,
	"THURSDAY":  time.Thursday,
	"FRIDAY":    time.Friday,
	"SATURDAY":  time.Saturday,
	"SUN":       time.Sunday,
	"MON":       time.Monday,
	"TUE":       time.Tuesday,
	"WED":       time.Wednesday,
	"THU":       time.Thursday,
	"FRI":       time.Friday,
	"SAT":       time.Saturday,
}

// ParseWeekday accepts full or three-letter day names in any case
func ParseWeekday(s string) (time.Weekday, bool) {
	d, ok := weekdays[strings.ToUpper(strings.TrimSpace(s))]
	return d, ok
}

// DayAllowed reports whether d is in days. An empty list allows every day.
func DayAllowed(days []string, d time.Weekday) bool {
	if len(days) == 0 {
		return true
	}
	for _, s := range days {
		if wd, ok := ParseWeekday(s); ok && wd == d {
			return true
		}
	}
	return false
}

// ParseClock parses "HH:MM" into minutes after midnight
func ParseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
