package model

import (
	"errors"
	"time"
)

var ErrInvalidPeriod = errors.New("period start is after period end")

// PeriodWindow is the reporting range of whole calendar days [Start, End].
type PeriodWindow struct {
	Start time.Time
	End   time.Time
}

func NewPeriodWindow(start, end time.Time) (PeriodWindow, error) {
	p := PeriodWindow{Start: StartOfDay(start), End: StartOfDay(end)}
	if p.Start.After(p.End) {
		return PeriodWindow{}, ErrInvalidPeriod
	}
	return p, nil
}

// MonthOf is the calendar month containing t.
func MonthOf(t time.Time) PeriodWindow {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return PeriodWindow{Start: first, End: first.AddDate(0, 1, -1)}
}

// Bounds returns the inclusive query range: Start at 00:00:00.000 through End
// at 23:59:59.999.
func (p PeriodWindow) Bounds() (from, to time.Time) {
	from = StartOfDay(p.Start)
	end := StartOfDay(p.End)
	to = time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, int(999*time.Millisecond), end.Location())
	return from, to
}

func (p PeriodWindow) Contains(t time.Time) bool {
	from, to := p.Bounds()
	return !t.Before(from) && !t.After(to)
}

// ISO renders both ends as YYYY-MM-DD, used in file names and logs.
func (p PeriodWindow) ISO() (start, end string) {
	return p.Start.Format(time.DateOnly), p.End.Format(time.DateOnly)
}

// Danish renders both ends as DD.MM.YYYY, used in the mail subject.
func (p PeriodWindow) Danish() (start, end string) {
	const layout = "02.01.2006"
	return p.Start.Format(layout), p.End.Format(layout)
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
