package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata" // zoneinfo 없는 환경 대비
)

const dateLayout = "2006-01-02"

// Calendar decides which dates are trading days: weekdays that are not a
// configured holiday. Dates are compared by calendar day only.
// ⭐ SSOT: 영업일 판단은 여기서만
type Calendar struct {
	holidays map[string]struct{}
	loc      *time.Location
}

// New creates a calendar from YYYY-MM-DD holidays and an IANA timezone
// (empty means UTC)
func New(holidays []string, timezone string) (*Calendar, error) {
	loc := time.UTC
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}

	c := &Calendar{holidays: make(map[string]struct{}, len(holidays)), loc: loc}
	for _, h := range holidays {
		d, err := time.Parse(dateLayout, h)
		if err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return c, nil
}

// Weekdays returns a calendar without holidays in UTC
func Weekdays() *Calendar {
	return &Calendar{holidays: map[string]struct{}{}, loc: time.UTC}
}

// IsTradingDay reports whether the date is a weekday and not a holiday
func (c *Calendar) IsTradingDay(date time.Time) bool {
	switch date.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[date.Format(dateLayout)]
	return !holiday
}

// NextTradingDay returns the first trading day strictly after date
func (c *Calendar) NextTradingDay(date time.Time) time.Time {
	next := date.AddDate(0, 0, 1)
	for !c.IsTradingDay(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Today returns the current calendar date in the market timezone, as UTC midnight
func (c *Calendar) Today(now time.Time) time.Time {
	local := now.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// Validate checks that an input date is a trading day and not in the future
func (c *Calendar) Validate(date, now time.Time) error {
	if !c.IsTradingDay(date) {
		return fmt.Errorf("%s is not a trading day", date.Format(dateLayout))
	}
	if date.After(c.Today(now)) {
		return fmt.Errorf("%s is in the future", date.Format(dateLayout))
	}
	return nil
}
