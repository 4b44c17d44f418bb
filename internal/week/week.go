package week

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the canonical textual form of a week_start date.
const Layout = "2006-01-02"

// ErrInvalidDate is returned when a week_start value is not a YYYY-MM-DD date.
var ErrInvalidDate = errors.New("invalid date")

// Parse reads a YYYY-MM-DD date. The result is midnight UTC.
func Parse(s string) (time.Time, error) {
	if len(s) != len(Layout) {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return t, nil
}

// Format renders t in the canonical YYYY-MM-DD form.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Canonical parses s and re-renders it, so callers always hand the store the
// same text for the same date.
func Canonical(s string) (string, error) {
	t, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(t), nil
}

// MondayOf returns the Monday of the week containing t. Sunday belongs to the
// week that started six days earlier.
func MondayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return day.AddDate(0, 0, -offset)
}

// Shift moves t by n whole weeks.
func Shift(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, 7*n)
}

// Current returns the week_start of the week containing now.
func Current(now time.Time) string {
	return Format(MondayOf(now))
}
