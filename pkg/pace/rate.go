package pace

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is the quota window a rate is expressed against.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
	UnitDay
)

// Duration returns the wall-clock length of one quota window.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitSecond:
		return time.Second
	case UnitMinute:
		return time.Minute
	case UnitHour:
		return time.Hour
	case UnitDay:
		return 24 * time.Hour
	default:
		return 0
	}
}

func (u Unit) String() string {
	switch u {
	case UnitSecond:
		return "per second"
	case UnitMinute:
		return "per minute"
	case UnitHour:
		return "per hour"
	case UnitDay:
		return "per day"
	default:
		return "per <invalid>"
	}
}

// Rate is a validated operations-per-window budget.
type Rate struct {
	Count int
	Unit  Unit
}

// ParseRate parses a rate specification of the form "<count> per <unit>",
// e.g. "60 per minute". Accepted units: per second, per minute, per hour,
// per day. Anything else fails with ErrInvalidDuration.
func ParseRate(s string) (Rate, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) != 3 || fields[1] != "per" {
		return Rate{}, fmt.Errorf("%w: %q (want \"<count> per <unit>\")", ErrInvalidDuration, s)
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil || count <= 0 {
		return Rate{}, fmt.Errorf("%w: %q (count must be a positive integer)", ErrInvalidDuration, s)
	}
	unit, err := parseUnit("per " + fields[2])
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return Rate{Count: count, Unit: unit}, nil
}

// RateOf builds a rate from an explicit count and a unit string such as
// "per minute". It is the second constructor surface next to ParseRate.
func RateOf(count int, unit string) (Rate, error) {
	if count <= 0 {
		return Rate{}, fmt.Errorf("%w: count %d (must be positive)", ErrInvalidDuration, count)
	}
	u, err := parseUnit(unit)
	if err != nil {
		return Rate{}, err
	}
	return Rate{Count: count, Unit: u}, nil
}

func parseUnit(s string) (Unit, error) {
	switch strings.Join(strings.Fields(strings.ToLower(s)), " ") {
	case "per second":
		return UnitSecond, nil
	case "per minute":
		return UnitMinute, nil
	case "per hour":
		return UnitHour, nil
	case "per day":
		return UnitDay, nil
	default:
		return 0, fmt.Errorf("%w: unit %q", ErrInvalidDuration, s)
	}
}

// Interval returns the nominal spacing between two tasks at this rate.
// Kept in nanosecond arithmetic so unit / count is not rounded early.
func (r Rate) Interval() time.Duration {
	if r.Count <= 0 {
		return 0
	}
	return r.Unit.Duration() / time.Duration(r.Count)
}

func (r Rate) String() string {
	return fmt.Sprintf("%d %s", r.Count, r.Unit)
}
