package shared

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// ErrInvalidPeriod indicates a period whose start is after its end.
var ErrInvalidPeriod = errors.New("period_from must not be after period_to")

// Period is an inclusive date range.
type Period struct {
	From time.Time
	To   time.Time
}

// ParseDate parses a YYYY-MM-DD date in UTC.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", value)
	}
	return t, nil
}

// Truncate drops the clock part of t.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewPeriod validates and builds a period.
func NewPeriod(from, to time.Time) (Period, error) {
	p := Period{From: Truncate(from), To: Truncate(to)}
	if p.From.After(p.To) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// Days returns the inclusive length of the period.
func (p Period) Days() int {
	if p.From.After(p.To) {
		return 0
	}
	return int(p.To.Sub(p.From).Hours()/24) + 1
}

// Overlap intersects p with another inclusive range. A nil end is open.
func (p Period) Overlap(from time.Time, to *time.Time) (Period, bool) {
	start := p.From
	if f := Truncate(from); f.After(start) {
		start = f
	}
	end := p.To
	if to != nil {
		if t := Truncate(*to); t.Before(end) {
			end = t
		}
	}
	if start.After(end) {
		return Period{}, false
	}
	return Period{From: start, To: end}, true
}

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

// MonthName returns the Russian nominative name of m, capitalised.
func MonthName(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return monthNames[m-1]
}

// RUDate renders t as DD.MM.YYYY.
func RUDate(t time.Time) string {
	return t.Format("02.01.2006")
}
