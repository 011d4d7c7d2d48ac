// Package ddbsink buffers rows for a tabletctx.Context and writes them in batches.
//
// A flush of an UPSERT table whose buffered rows all carry every column goes out as
// BatchWriteItem calls, retrying unprocessed items with backoff. Any other flush writes
// the rows one by one through Context.WriteRow, a bounded number at a time.
//
// A Sink is not safe for concurrent use.
package ddbsink

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/acksell/tabletconn/dynamodb/row"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/acksell/tabletconn/dynamodb/tabletctx"
	"github.com/acksell/tabletconn/metrics"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"
)

type Sink struct {
	tctx   *tabletctx.Context
	desc   table.TableDescriptor
	opts   sinkOpts
	logger *slog.Logger

	pending []row.Row
	index   map[string]int // row key -> position in pending
	closed  bool
}

func New(tctx *tabletctx.Context, opts ...Option) *Sink {
	s := &Sink{
		tctx: tctx,
		desc: tctx.Descriptor(),
		opts: sinkOpts{
			batchSize:   DefaultBatchSize,
			concurrency: DefaultConcurrency,
			maxRetries:  DefaultMaxRetries,
			backoff:     DefaultBackoff,
			logger:      tctx.Logger(),
		},
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(&s.opts)
	}
	s.logger = s.opts.logger.With("component", "ddbsink")
	return s
}

// Write buffers r and flushes once the buffer is full. A buffered row with the
// same key is replaced. Rows that do not fit the descriptor are refused right away.
func (s *Sink) Write(ctx context.Context, r row.Row) error {
	if s.closed {
		return ErrClosed
	}
	key, _, _, err := row.Split(s.desc, r)
	if err != nil {
		return err
	}

	k := keyString(s.desc, key)
	if i, ok := s.index[k]; ok {
		s.pending[i] = r
	} else {
		s.index[k] = len(s.pending)
		s.pending = append(s.pending, r)
	}

	if len(s.pending) >= s.opts.batchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Pending returns the number of buffered rows.
func (s *Sink) Pending() int {
	return len(s.pending)
}

// Flush writes every buffered row. The buffer is emptied even when the flush fails.
func (s *Sink) Flush(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	rows := s.pending
	s.pending = nil
	s.index = make(map[string]int)

	metrics.SinkFlushSize.Observe(float64(len(rows)))
	if s.batchable(rows) {
		metrics.SinkFlushes.WithLabelValues(s.desc.Name(), "batch").Inc()
		return s.flushBatch(ctx, rows)
	}
	metrics.SinkFlushes.WithLabelValues(s.desc.Name(), "rows").Inc()
	return s.flushRows(ctx, rows)
}

// Close flushes what is left. Later writes fail with ErrClosed.
// The Context is not closed.
func (s *Sink) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.Flush(ctx)
}

// batchable reports whether a full-item put is equivalent to an upsert for every row.
func (s *Sink) batchable(rows []row.Row) bool {
	if s.desc.Mode() != table.ModeUpsert {
		return false
	}
	cols := s.desc.Columns()
	for _, r := range rows {
		for _, c := range cols {
			if !r.Has(c.Name) {
				return false
			}
		}
	}
	return true
}

func (s *Sink) flushBatch(ctx context.Context, rows []row.Row) error {
	switch s.tctx.State() {
	case tabletctx.StateBoundExists:
	case tabletctx.StateClosed:
		return tabletctx.ErrClosed
	default:
		return tabletctx.ErrTableNotBound
	}

	reqs := make([]types.WriteRequest, 0, len(rows))
	byKey := make(map[string]row.Row, len(rows))
	for _, r := range rows {
		item, err := row.ToItem(s.desc, r)
		if err != nil {
			return err
		}
		reqs = append(reqs, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
		byKey[keyString(s.desc, item)] = r
	}

	pending := map[string][]types.WriteRequest{s.desc.Name(): reqs}
	for retries := 0; ; retries++ {
		out, err := s.tctx.Client().BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch write %d items: %w", countRequests(pending), err)
		}
		written := countRequests(pending) - countRequests(out.UnprocessedItems)
		metrics.RowsWritten.WithLabelValues(s.desc.Name(), string(s.desc.Mode()), metrics.ResultOK).Add(float64(written))

		pending = out.UnprocessedItems
		left := countRequests(pending)
		if left == 0 {
			return nil
		}
		if retries >= s.opts.maxRetries {
			return &UnprocessedError{Table: s.desc.Name(), Rows: unprocessedRows(s.desc, pending, byKey), Retries: retries}
		}

		metrics.SinkBatchRetries.WithLabelValues(s.desc.Name()).Inc()
		s.logger.Debug("retrying unprocessed batch items", "unprocessed", left, "attempt", retries+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.backoff(retries)):
		}
	}
}

func (s *Sink) flushRows(ctx context.Context, rows []row.Row) error {
	var (
		mu       sync.Mutex
		rejected []row.Row
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.concurrency)
	for _, r := range rows {
		g.Go(func() error {
			ok, err := s.tctx.WriteRow(gctx, r)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				rejected = append(rejected, r)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(rejected) > 0 {
		s.logger.Warn("rows rejected during flush", "rejected", len(rejected), "flushed", len(rows))
		return &RejectedRowsError{Table: s.desc.Name(), Rows: rejected}
	}
	return nil
}

// unprocessedRows maps the put requests still pending back to the buffered rows.
func unprocessedRows(desc table.TableDescriptor, pending map[string][]types.WriteRequest, byKey map[string]row.Row) []row.Row {
	var out []row.Row
	for _, req := range pending[desc.Name()] {
		if req.PutRequest == nil {
			continue
		}
		if r, ok := byKey[keyString(desc, req.PutRequest.Item)]; ok {
			out = append(out, r)
		}
	}
	return out
}

// keyString renders the key attributes of an item so equal keys give equal strings.
func keyString(desc table.TableDescriptor, key map[string]types.AttributeValue) string {
	var b strings.Builder
	for _, name := range desc.PrimaryKeyDefinition().KeyNames() {
		switch v := key[name].(type) {
		case *types.AttributeValueMemberS:
			fmt.Fprintf(&b, "S%d:%s", len(v.Value), v.Value)
		case *types.AttributeValueMemberN:
			fmt.Fprintf(&b, "N%s;", v.Value)
		case *types.AttributeValueMemberB:
			fmt.Fprintf(&b, "B%s;", hex.EncodeToString(v.Value))
		}
	}
	return b.String()
}

func countRequests(m map[string][]types.WriteRequest) int {
	var n int
	for _, reqs := range m {
		n += len(reqs)
	}
	return n
}
