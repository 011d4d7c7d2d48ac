package ddbsink

import (
	"errors"
	"fmt"

	"github.com/acksell/tabletconn/dynamodb/row"
)

var ErrClosed = errors.New("ddbsink: sink is closed")

// RejectedRowsError lists rows the write mode's condition skipped during a flush,
// such as INSERT rows whose key already existed.
type RejectedRowsError struct {
	Table string
	Rows  []row.Row
}

func (e *RejectedRowsError) Error() string {
	return fmt.Sprintf("%d rows rejected by table %q", len(e.Rows), e.Table)
}

// UnprocessedError lists rows the store still had not accepted when retries ran out.
// They are no longer buffered; write them again to retry.
type UnprocessedError struct {
	Table   string
	Rows    []row.Row
	Retries int
}

func (e *UnprocessedError) Error() string {
	return fmt.Sprintf("batch incomplete for table %q: %d rows unprocessed after %d retries", e.Table, len(e.Rows), e.Retries)
}
