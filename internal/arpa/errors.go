package arpa

import (
	"errors"
	"fmt"
)

// The archive distinguishes a small set of error kinds so that callers
// (and the CLI exit-code mapping) can tell a rejected write from a
// store fault. Everything else is wrapped with fmt.Errorf("%w") as
// usual.

// NotFoundError reports a lookup by id (or unique key) with no
// matching row.
type NotFoundError struct {
	Table string
	Key   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no entry %s in table %q", e.Key, e.Table)
}

// ReferentialViolationError reports a write that would dangle a
// foreign key: either an insert referencing a missing row, or a delete
// of a row that other rows still reference.
type ReferentialViolationError struct {
	Table  string
	ID     int64
	Detail string
}

func (e *ReferentialViolationError) Error() string {
	return fmt.Sprintf("referential violation on %s id=%d: %s", e.Table, e.ID, e.Detail)
}

// ConsistencyError reports input that conflicts with what the archive
// already knows, e.g. a pulsar hint that disagrees with the pulsar
// recorded for an existing checksum.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return "consistency error: " + e.Detail
}

// DuplicateEntryError reports an insert whose unique fields collide
// with an existing row. Carries the surviving row's id so callers can
// pick it up instead.
type DuplicateEntryError struct {
	Table string
	ID    int64
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("entry conflicts with existing id=%d in table %q", e.ID, e.Table)
}

// DuplicateProcessError is the store-level signal that a process run
// with an identical input tuple already exists. The orchestrator
// converts it into a successful short-circuit result; it only ever
// surfaces as an error if something bypasses the orchestrator.
type DuplicateProcessError struct {
	ProcessID int64
}

func (e *DuplicateProcessError) Error() string {
	return fmt.Sprintf("identical process run already recorded (id=%d)", e.ProcessID)
}

// NoEphemerisError reports that a pipeline run had neither an explicit
// ephemeris nor a master ephemeris to fall back on.
type NoEphemerisError struct {
	PulsarID int64
}

func (e *NoEphemerisError) Error() string {
	return fmt.Sprintf("pulsar id=%d has no master ephemeris and none was specified", e.PulsarID)
}

// FitError reports a failure of the external timing-fit routine.
// No metadata is written for a failed fit; the caller may retry with
// different inputs.
type FitError struct {
	Method string
	Output string
	Err    error
}

func (e *FitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("fit with method %q failed: %v", e.Method, e.Err)
	}
	return fmt.Sprintf("fit with method %q failed: %v\noutput:\n%s", e.Method, e.Err, e.Output)
}

func (e *FitError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
