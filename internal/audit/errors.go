package audit

import "errors"

var (
	// ErrManagerClosed is returned when writes occur after shutdown.
	ErrManagerClosed = errors.New("audit manager closed")
	// ErrNilEvent is returned when callers attempt to record a nil event.
	ErrNilEvent = errors.New("audit event is nil")
	// ErrBufferFull is returned when the drop policy discards an event.
	ErrBufferFull = errors.New("audit buffer full")

	// ErrInvalidTimestamp is returned for a time bound that does not parse.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	// ErrIncompleteTimeRange is returned when only one time bound is given.
	ErrIncompleteTimeRange = errors.New("both startTime and endTime must be provided")
	// ErrInvalidTimeRange is returned when start is after end.
	ErrInvalidTimeRange = errors.New("startTime must not be after endTime")
	// ErrInvalidOperation is returned for an unknown operation kind.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrNoMatch is returned by Search when no event satisfies the filter.
	ErrNoMatch = errors.New("no logs found matching the specified criteria")
	// ErrStoreUnavailable wraps failures of the underlying document store.
	ErrStoreUnavailable = errors.New("audit store unavailable")

	// ErrUnknownShape is returned by Decode for documents matching no
	// supported layout.
	ErrUnknownShape = errors.New("unrecognized audit document shape")
)
