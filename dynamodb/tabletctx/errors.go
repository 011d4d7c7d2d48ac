package tabletctx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/acksell/tabletconn/dynamodb/row"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

var (
	// ErrClosed is returned by every operation on a closed Context.
	ErrClosed = errors.New("tabletctx: context is closed")
	// ErrTableNotBound is returned by row operations while the table does not exist.
	ErrTableNotBound = errors.New("tabletctx: table is not bound")
	// ErrTableNotFound is returned when the store has no table with the descriptor's name.
	ErrTableNotFound = errors.New("tabletctx: table not found")
)

// SchemaMismatchError is returned by WriteRow for rows that do not fit the descriptor.
type SchemaMismatchError = row.SchemaMismatchError

// UnsupportedOperationError reports an operation the descriptor does not allow,
// such as creating a table whose descriptor has create-if-missing turned off.
type UnsupportedOperationError struct {
	Op     string
	Table  string
	Reason string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("%s on table %q is not supported: %s", e.Op, e.Table, e.Reason)
}

// TimeoutError reports a write that did not complete within the write timeout.
type TimeoutError struct {
	Op      string
	Table   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s on table %q timed out after %s", e.Op, e.Table, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// StoreUnavailableError reports a failure to reach the store at all.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

func isNotFound(err error) bool {
	var nf *types.ResourceNotFoundException
	return errors.As(err, &nf)
}

func isInUse(err error) bool {
	var iu *types.ResourceInUseException
	return errors.As(err, &iu)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

// wrapStoreErr marks transport failures as StoreUnavailableError and annotates the rest.
func wrapStoreErr(op string, err error) error {
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return &StoreUnavailableError{Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
