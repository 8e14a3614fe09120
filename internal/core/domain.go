package core

import (
	"errors"
	"strings"
	"time"
)

// ReservedCategory is the aggregate-selector keyword shown in the analysis
// dialog. It can never be used as a category name.
const ReservedCategory = "All"

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrFutureDate    = errors.New("date lies in the future")
	ErrNotFound      = errors.New("not found")
)

type (
	// Category is a named spending bucket, unique per owner. Position is an
	// ordering hint carried in the schema but not interpreted anywhere yet.
	Category struct {
		ID       int64
		OwnerID  int64
		Name     string
		Position *int64
	}

	// Entry is one recorded expense. Ownership is transitive through the
	// category; Entry itself carries no owner column. An empty Comment is
	// stored as NULL.
	Entry struct {
		ID         int64
		CategoryID int64
		Category   string
		Value      Money
		Date       Date
		Comment    string
	}

	// CategorySum is one row of a windowed aggregate: the exact total of
	// all matching entries in one category.
	CategorySum struct {
		Category string
		Total    Money
	}
)

// WithValue returns a copy of the entry with the value replaced.
func (e Entry) WithValue(v Money) Entry {
	e.Value = v
	return e
}

// WithDate returns a copy of the entry with the date replaced.
func (e Entry) WithDate(d Date) Entry {
	e.Date = d
	return e
}

// WithComment returns a copy of the entry with the comment replaced.
func (e Entry) WithComment(c string) Entry {
	e.Comment = c
	return e
}

// ValidCategoryName reports whether name may be used as a category name.
// The reserved aggregate keyword and blank names are rejected.
func ValidCategoryName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && name != ReservedCategory
}

// Period selects an aggregation time window.
type Period string

const (
	PeriodAll   Period = "all"
	Period7Day  Period = "7day"
	Period30Day Period = "30day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// LowerBound resolves the period to an inclusive ISO date lower bound
// relative to now. The second return is false when the period does not
// constrain the window.
func (p Period) LowerBound(now time.Time) (string, bool) {
	switch p {
	case Period7Day:
		return DateOf(now.AddDate(0, 0, -7)).ISO(), true
	case Period30Day:
		return DateOf(now.AddDate(0, 0, -30)).ISO(), true
	case PeriodMonth:
		return Date{Year: now.Year(), Month: int(now.Month()), Day: 1}.ISO(), true
	case PeriodYear:
		return Date{Year: now.Year(), Month: 1, Day: 1}.ISO(), true
	default:
		return "", false
	}
}
