package audit

import (
	"fmt"
	"strings"
	"time"
)

// Filter is a conjunctive set of optional search criteria. Zero fields
// impose no constraint.
type Filter struct {
	Actor     string
	Start     *time.Time
	End       *time.Time
	Operation Operation
}

// ParseFilter builds a Filter from raw query values. Empty values are
// treated as absent. A time range needs both bounds.
func ParseFilter(user, startTime, endTime, operation string) (Filter, error) {
	var f Filter
	f.Actor = strings.TrimSpace(user)

	startTime = strings.TrimSpace(startTime)
	endTime = strings.TrimSpace(endTime)

	if startTime != "" || endTime != "" {
		if startTime == "" || endTime == "" {
			return Filter{}, ErrIncompleteTimeRange
		}

		start, err := ParseTimestamp(startTime)
		if err != nil {
			return Filter{}, fmt.Errorf("startTime: %w", err)
		}
		end, err := ParseTimestamp(endTime)
		if err != nil {
			return Filter{}, fmt.Errorf("endTime: %w", err)
		}
		if start.After(end) {
			return Filter{}, ErrInvalidTimeRange
		}
		f.Start, f.End = &start, &end
	}

	if op := strings.TrimSpace(operation); op != "" {
		parsed, err := ParseOperation(op)
		if err != nil {
			return Filter{}, err
		}
		f.Operation = parsed
	}

	return f, nil
}

// Validate rejects half-open ranges on filters built by hand.
func (f Filter) Validate() error {
	if (f.Start == nil) != (f.End == nil) {
		return ErrIncompleteTimeRange
	}
	if f.Start != nil && f.Start.After(*f.End) {
		return ErrInvalidTimeRange
	}
	return nil
}

// IsEmpty reports whether the filter matches every event.
func (f Filter) IsEmpty() bool {
	return f.Actor == "" && f.Start == nil && f.End == nil && f.Operation == ""
}

// Matches applies every present criterion. The time range is inclusive on
// both ends.
func (f Filter) Matches(e Event) bool {
	if f.Actor != "" && e.Actor != f.Actor {
		return false
	}
	if f.Start != nil && f.End != nil {
		if e.Timestamp.Before(*f.Start) || e.Timestamp.After(*f.End) {
			return false
		}
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	return true
}
