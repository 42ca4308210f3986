package client

import (
	"errors"
	"fmt"
)

var (
	ErrTransportClosed = errors.New("client: transport closed")
	ErrTimeout         = errors.New("client: request timed out")
	ErrCanceled        = errors.New("client: request canceled")
	ErrTooManyInFlight = errors.New("client: in-flight table full")
	ErrDuplicateSeq    = errors.New("client: duplicate sequence number")
	ErrSerializeFailed = errors.New("client: serialize failed")
	ErrSchemaMismatch  = errors.New("client: response did not decode as the expected schema")
	ErrSubClosed       = errors.New("client: subscription closed")
)

// RemoteError carries the decoded payload of an error frame sent by the
// device for one of our requests.
type RemoteError struct {
	Inner error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("client: remote error: %v", e.Inner)
}

func (e *RemoteError) Unwrap() error {
	return e.Inner
}
