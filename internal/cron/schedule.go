package cron

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/edvin/panel/internal/core"
)

type fieldRange struct {
	name     string
	min, max int
}

var fields = [5]fieldRange{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 7},
}

// ValidateSchedule checks expr is a classic five-field cron expression.
// Each field is a comma separated list of "*", "n", "a-b", "*/s" or "a-b/s"
// within the field's range. Macros and extensions are rejected.
func ValidateSchedule(expr string) error {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return core.Errorf(core.InvalidSchedule, "schedule %q: want 5 fields, got %d", expr, len(parts))
	}
	for i, part := range parts {
		if err := validateField(part, fields[i]); err != nil {
			return core.Errorf(core.InvalidSchedule, "schedule %q: %s field %q: %s", expr, fields[i].name, part, err)
		}
	}
	if !gronx.New().IsValid(expr) {
		return core.Errorf(core.InvalidSchedule, "schedule %q is not a valid cron expression", expr)
	}
	return nil
}

func validateField(s string, r fieldRange) error {
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			return errors.New("empty list item")
		}
		base, step, hasStep := strings.Cut(item, "/")
		if hasStep {
			n, err := strconv.Atoi(step)
			if err != nil || n < 1 || n > r.max {
				return errors.New("invalid step " + strconv.Quote(step))
			}
		}
		if base == "*" {
			continue
		}
		lo, hi, isRange := strings.Cut(base, "-")
		if hasStep && !isRange {
			return errors.New("step needs * or a range")
		}
		a, err := bound(lo, r)
		if err != nil {
			return err
		}
		if !isRange {
			continue
		}
		b, err := bound(hi, r)
		if err != nil {
			return err
		}
		if a > b {
			return errors.New("range start after end")
		}
	}
	return nil
}

func bound(s string, r fieldRange) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || s[0] == '+' || s[0] == '-' {
		return 0, errors.New("not a number: " + strconv.Quote(s))
	}
	if n < r.min || n > r.max {
		return 0, errors.New("out of range " + strconv.Itoa(r.min) + "-" + strconv.Itoa(r.max))
	}
	return n, nil
}

// NextRun returns the first minute matching expr strictly after now. The
// result depends only on expr and now.
func NextRun(expr string, now time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(expr, now.Truncate(time.Minute), false)
	if err != nil {
		return time.Time{}, core.Wrap(core.InvalidSchedule, err, "schedule %q", expr)
	}
	for !next.After(now) {
		if next, err = gronx.NextTickAfter(expr, next, false); err != nil {
			return time.Time{}, core.Wrap(core.InvalidSchedule, err, "schedule %q", expr)
		}
	}
	return next, nil
}
