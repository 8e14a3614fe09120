package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Date is a plain calendar date without time-of-day or zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: int(t.Month()), Day: t.Day()}
}

// ParseISO parses a YYYY-MM-DD string as written by ISO.
func ParseISO(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

// ISO renders the date as YYYY-MM-DD.
func (d Date) ISO() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Display renders the date as DD.MM.YYYY for prompts.
func (d Date) Display() string {
	return fmt.Sprintf("%02d.%02d.%04d", d.Day, d.Month, d.Year)
}

// After reports whether d is strictly after o. It compares the raw (year,
// month, day) tuple, so it is usable before calendar validation.
func (d Date) After(o Date) bool {
	if d.Year != o.Year {
		return d.Year > o.Year
	}
	if d.Month != o.Month {
		return d.Month > o.Month
	}
	return d.Day > o.Day
}

// valid reports whether d names a real calendar day. time.Date normalizes
// out-of-range components (Feb 30 becomes Mar 2), so a round-trip mismatch
// means the date was invalid.
func (d Date) valid() bool {
	if d.Month < 1 || d.Month > 12 || d.Day < 1 {
		return false
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
	return t.Year() == d.Year && int(t.Month()) == d.Month && t.Day() == d.Day
}

// NormalizeDate parses a free-text date such as "24.12", "24.12.23" or
// "24-12-2023" into a calendar date.
//
// Dots, dashes and spaces all act as separators. When no year is given the
// current year is assumed, rolled back one year if the composed date would
// lie in the future (so a December date entered in January needs no year).
// A two-digit year is taken as 20xx. Dates that do not exist on the calendar
// and dates strictly after today are rejected.
func NormalizeDate(raw string, now time.Time) (Date, error) {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "-", ".")
	s = strings.ReplaceAll(s, " ", ".")

	var parts []string
	for _, p := range strings.Split(s, ".") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 || len(parts) > 3 {
		return Date{}, ErrInvalidDate
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil {
		return Date{}, ErrInvalidDate
	}

	today := DateOf(now)
	var year int
	if len(parts) == 2 {
		year = today.Year
		if (Date{Year: year, Month: month, Day: day}).After(today) {
			year--
		}
	} else {
		ys := parts[2]
		if len(ys) == 2 {
			ys = "20" + ys
		}
		if len(ys) != 4 {
			return Date{}, ErrInvalidDate
		}
		year, err = strconv.Atoi(ys)
		if err != nil {
			return Date{}, ErrInvalidDate
		}
	}

	d := Date{Year: year, Month: month, Day: day}
	if !d.valid() {
		return Date{}, ErrInvalidDate
	}
	if d.After(today) {
		return Date{}, ErrFutureDate
	}
	return d, nil
}
