package conversation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateTimeInfo is the scheduling information parsed from a lead message.
// Date is truncated to midnight in the local zone when HasDate is set; Time
// is "HH:MM" or empty; Period is "manha", "tarde" or "noite" when the lead
// gave a part of day instead of (or alongside) an exact hour.
type DateTimeInfo struct {
	Date    time.Time
	HasDate bool
	Time    string
	Period  string
}

var (
	amanhaRe   = regexp.MustCompile(`amanh[aã]`)
	diaRe      = regexp.MustCompile(`dia\s+(\d{1,2})`)
	hourRe     = regexp.MustCompile(`(\d{1,2})[h:](\d{2})?`)
	morningRe  = regexp.MustCompile(`manh[aã]`)
)

// weekday names in resolution order, mapped Monday=0 .. Sunday=6.
var weekdayNames = []struct {
	name string
	day  int
}{
	{"segunda", 0}, {"terca", 1}, {"terça", 1}, {"quarta", 2},
	{"quinta", 3}, {"sexta", 4}, {"sabado", 5}, {"sábado", 5}, {"domingo", 6},
}

// ParsePortugueseDateTime parses expressions like "amanha as 14h",
// "dia 26 de manhã" or "sexta à tarde" relative to now. Later, more
// specific date forms override earlier ones ("dia 26" beats "hoje").
// Returns nil when the message carries neither a date nor a time.
func ParsePortugueseDateTime(message string, now time.Time) *DateTimeInfo {
	text := strings.ToLower(strings.TrimSpace(message))
	info := &DateTimeInfo{}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if strings.Contains(text, "hoje") {
		info.Date, info.HasDate = today, true
	} else if amanhaRe.MatchString(text) {
		info.Date, info.HasDate = today.AddDate(0, 0, 1), true
	}

	if m := diaRe.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		if d, ok := dayOfMonth(today, day); ok {
			info.Date, info.HasDate = d, true
		}
	}

	for _, wd := range weekdayNames {
		if strings.Contains(text, wd.name) {
			current := (int(today.Weekday()) + 6) % 7
			ahead := wd.day - current
			if ahead <= 0 {
				ahead += 7
			}
			info.Date, info.HasDate = today.AddDate(0, 0, ahead), true
			break
		}
	}

	if m := hourRe.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour <= 23 && minute <= 59 {
			info.Time = fmt.Sprintf("%02d:%02d", hour, minute)
		}
	}

	switch {
	case morningRe.MatchString(text):
		info.Period = "manha"
		if info.Time == "" {
			info.Time = "09:00"
		}
	case strings.Contains(text, "tarde"):
		info.Period = "tarde"
		if info.Time == "" {
			info.Time = "14:00"
		}
	case strings.Contains(text, "noite"):
		info.Period = "noite"
		if info.Time == "" {
			info.Time = "19:00"
		}
	}

	if !info.HasDate && info.Time == "" {
		return nil
	}
	return info
}

// dayOfMonth resolves a bare day number to this month, rolling into the
// next month when the day has already passed. Days invalid for the target
// month (like 31 in April) are rejected.
func dayOfMonth(today time.Time, day int) (time.Time, bool) {
	if day < 1 || day > 31 {
		return time.Time{}, false
	}
	d := time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, today.Location())
	if d.Day() != day {
		return time.Time{}, false
	}
	if d.Before(today) {
		d = time.Date(today.Year(), today.Month()+1, day, 0, 0, 0, 0, today.Location())
		if d.Day() != day {
			return time.Time{}, false
		}
	}
	return d, true
}
