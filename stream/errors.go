package stream

import (
	"errors"
)

// Completion is the terminal event of a stream: Finished or a failure.
type Completion struct {
	err error
}

var Finished = Completion{}

// Failure returns a failed completion. A nil err yields Finished.
func Failure(err error) Completion {
	return Completion{err: err}
}

func (c Completion) Err() error {
	return c.err
}

func (c Completion) IsFailure() bool {
	return c.err != nil
}

func (c Completion) String() string {
	if c.err == nil {
		return "finished"
	}
	return "failure: " + c.err.Error()
}

// ProtocolViolationError is raised, as a panic, when a component is driven
// outside of the protocol. It is a programming error and never returned.
type ProtocolViolationError struct {
	Err error
	Op  string
}

func (e ProtocolViolationError) Error() string {
	if e.Op == "" {
		return "protocol violation: " + e.Err.Error()
	}
	return "protocol violation (" + e.Op + "): " + e.Err.Error()
}

func (e ProtocolViolationError) Unwrap() error {
	return e.Err
}

var ErrAlreadySubscribed = errors.New("subscriber received a second subscription")
