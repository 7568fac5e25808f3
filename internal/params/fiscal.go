package params

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthDay is a calendar day without a year
type MonthDay struct {
	Month time.Month
	Day   int
}

// January1 is the default fiscal year start
var January1 = MonthDay{Month: time.January, Day: 1}

// ParseMonthDay parses "MM-DD"
func ParseMonthDay(s string) (MonthDay, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 2 {
		return MonthDay{}, fmt.Errorf("invalid month-day %q: expected MM-DD", s)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil || month < 1 || month > 12 {
		return MonthDay{}, fmt.Errorf("invalid month in %q", s)
	}
	day, err := strconv.Atoi(parts[1])
	if err != nil || day < 1 {
		return MonthDay{}, fmt.Errorf("invalid day in %q", s)
	}
	// 2001 is not a leap year, so Feb 29 is rejected; a fiscal year has to
	// start on a day that exists every year.
	if last := time.Date(2001, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day(); day > last {
		return MonthDay{}, fmt.Errorf("invalid day in %q", s)
	}
	return MonthDay{Month: time.Month(month), Day: day}, nil
}

// String formats the day as MM-DD
func (md MonthDay) String() string {
	return fmt.Sprintf("%02d-%02d", int(md.Month), md.Day)
}

// IsZero reports whether md is unset
func (md MonthDay) IsZero() bool {
	return md.Month == 0 && md.Day == 0
}

// FiscalYear is an inclusive date range
type FiscalYear struct {
	Begin time.Time
	End   time.Time
}

// Contains reports whether t falls on a day inside the fiscal year
func (fy FiscalYear) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, fy.Begin.Location())
	return !d.Before(fy.Begin) && !d.After(fy.End)
}

// FiscalYears returns the fiscal year containing now, the one before it and
// the one before that. The current year begins on the latest start day not
// after now and ends the day before the following start day.
func FiscalYears(now time.Time, start MonthDay) (current, last, beforeLast FiscalYear) {
	if start.IsZero() {
		start = January1
	}
	begin := time.Date(now.Year(), start.Month, start.Day, 0, 0, 0, 0, now.Location())
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if today.Before(begin) {
		begin = begin.AddDate(-1, 0, 0)
	}

	year := func(offset int) FiscalYear {
		b := begin.AddDate(offset, 0, 0)
		return FiscalYear{Begin: b, End: b.AddDate(1, 0, -1)}
	}
	return year(0), year(-1), year(-2)
}
