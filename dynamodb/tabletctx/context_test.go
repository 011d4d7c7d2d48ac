package tabletctx

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/acksell/tabletconn/dynamodb/ddbiface"
	"github.com/acksell/tabletconn/dynamodb/ddbstore"
	"github.com/acksell/tabletconn/dynamodb/row"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *ddbstore.Store {
	t.Helper()
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func testingTable(t *testing.T, name string, mode table.WriteMode, createIfNotExist bool) table.TableDescriptor {
	t.Helper()
	d, err := table.NewDescriptor(name).
		Mode(mode).
		CreateIfNotExist(createIfNotExist).
		AddColumn(
			table.NewColumn("key", table.TypeInt32).Key(true).RangeKey(true).Build(),
			table.NewColumn("value", table.TypeString).Nullable(true).Build(),
		).
		Build()
	require.NoError(t, err)
	return d
}

func createRow(key int32) row.Row {
	return row.FromMap(map[string]any{
		"key":   key,
		"value": fmt.Sprintf("value%d", key),
	})
}

func newContext(t *testing.T, client ddbiface.Client, desc table.TableDescriptor, opts ...Option) *Context {
	t.Helper()
	c, err := New(context.Background(), client, desc, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
	})
	return c
}

func TestTableCreationAndDeletion(t *testing.T) {
	ctx := context.Background()
	c := newContext(t, newStore(t), testingTable(t, "testing", table.ModeUpsert, true))

	exists, err := c.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists, "table should exist")
	assert.Equal(t, StateBoundExists, c.State())

	deleted, err := c.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted, "table should be deleted")
	assert.Equal(t, StateBoundNotExists, c.State())

	exists, err = c.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists, "table should not exist")

	t.Run("second delete fails", func(t *testing.T) {
		deleted, err := c.Delete(ctx)
		assert.False(t, deleted)
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("writes need a bound table", func(t *testing.T) {
		_, err := c.WriteRow(ctx, createRow(1))
		assert.ErrorIs(t, err, ErrTableNotBound)
	})

	t.Run("create brings it back", func(t *testing.T) {
		require.NoError(t, c.Create(ctx))
		assert.Equal(t, StateBoundExists, c.State())
		ok, err := c.WriteRow(ctx, createRow(1))
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestTableCreationError(t *testing.T) {
	store := newStore(t)

	_, err := New(context.Background(), store, testingTable(t, "testing", table.ModeUpsert, false))
	var unsupported *UnsupportedOperationError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, "testing", unsupported.Table)

	out, err := store.ListTables(context.Background(), &dynamodb.ListTablesInput{})
	require.NoError(t, err)
	assert.Empty(t, out.TableNames, "no table may be created")
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	creator := newContext(t, store, testingTable(t, "shared", table.ModeUpsert, true))

	t.Run("existing table is a no-op", func(t *testing.T) {
		require.NoError(t, creator.Create(ctx))
	})

	t.Run("binding to an existing table without create", func(t *testing.T) {
		c := newContext(t, store, testingTable(t, "shared", table.ModeUpsert, false))
		require.NoError(t, c.Create(ctx))
		assert.Equal(t, StateBoundExists, c.State())
	})

	t.Run("missing table without create", func(t *testing.T) {
		c := newContext(t, store, testingTable(t, "shared", table.ModeUpsert, false))
		_, err := creator.Delete(ctx)
		require.NoError(t, err)

		err = c.Create(ctx)
		var unsupported *UnsupportedOperationError
		require.ErrorAs(t, err, &unsupported)
		assert.Equal(t, StateBoundNotExists, c.State())
	})
}

func TestTableWrite(t *testing.T) {
	ctx := context.Background()
	c := newContext(t, newStore(t), testingTable(t, "testing", table.ModeUpsert, true))

	for i := int32(0); i < 10; i++ {
		ok, err := c.WriteRow(ctx, createRow(i))
		require.NoError(t, err)
		assert.True(t, ok, "write not done")
	}

	rows, err := c.ReadRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	sort.Slice(rows, func(i, j int) bool {
		a, _ := rows[i].Int64("key")
		b, _ := rows[j].Int64("key")
		return a < b
	})
	for i, r := range rows {
		assert.Equal(t, int32(i), r["key"])
		assert.Equal(t, fmt.Sprintf("value%d", i), r["value"])
	}
}

func TestWriteModes(t *testing.T) {
	ctx := context.Background()

	t.Run("insert skips existing rows", func(t *testing.T) {
		c := newContext(t, newStore(t), testingTable(t, "inserts", table.ModeInsert, true))

		ok, err := c.WriteRow(ctx, createRow(1))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = c.WriteRow(ctx, row.FromMap(map[string]any{"key": int32(1), "value": "other"}))
		require.NoError(t, err)
		assert.False(t, ok)

		rows, err := c.ReadRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "value1", rows[0]["value"])
	})

	t.Run("update skips missing rows", func(t *testing.T) {
		store := newStore(t)
		upserts := newContext(t, store, testingTable(t, "updates", table.ModeUpsert, true))
		updates := newContext(t, store, testingTable(t, "updates", table.ModeUpdate, false))

		ok, err := updates.WriteRow(ctx, createRow(1))
		require.NoError(t, err)
		assert.False(t, ok)

		rows, err := updates.ReadRows(ctx)
		require.NoError(t, err)
		assert.Empty(t, rows)

		ok, err = upserts.WriteRow(ctx, createRow(1))
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = updates.WriteRow(ctx, row.FromMap(map[string]any{"key": int32(1), "value": "changed"}))
		require.NoError(t, err)
		assert.True(t, ok)

		rows, err = updates.ReadRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "changed", rows[0]["value"])
	})

	t.Run("upsert keeps unspecified columns and clears nil ones", func(t *testing.T) {
		c := newContext(t, newStore(t), testingTable(t, "upserts", table.ModeUpsert, true))

		_, err := c.WriteRow(ctx, createRow(1))
		require.NoError(t, err)

		ok, err := c.WriteRow(ctx, row.New().Set("key", int32(1)))
		require.NoError(t, err)
		assert.True(t, ok)

		rows, err := c.ReadRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "value1", rows[0]["value"])

		_, err = c.WriteRow(ctx, row.New().Set("key", int32(1)).Set("value", nil))
		require.NoError(t, err)

		rows, err = c.ReadRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.False(t, rows[0].Has("value"))
	})
}

func TestLargeIntegerKeys(t *testing.T) {
	ctx := context.Background()
	desc, err := table.NewDescriptor("flakes").
		CreateIfNotExist(true).
		AddColumn(
			table.NewColumn("id", table.TypeInt64).Key(true).Build(),
			table.NewColumn("v", table.TypeString).Build(),
		).
		Build()
	require.NoError(t, err)
	c := newContext(t, newStore(t), desc)

	for i, id := range []int64{9007199254740992, 9007199254740993} {
		ok, err := c.WriteRow(ctx, row.FromMap(map[string]any{"id": id, "v": fmt.Sprint(i)}))
		require.NoError(t, err)
		require.True(t, ok)
	}

	rows, err := c.ReadRows(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.ElementsMatch(t, []any{int64(9007199254740992), int64(9007199254740993)}, []any{rows[0]["id"], rows[1]["id"]})
}

func TestWriteRowSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	c := newContext(t, newStore(t), testingTable(t, "testing", table.ModeUpsert, true))

	tests := []struct {
		name   string
		row    row.Row
		column string
	}{
		{name: "missing key", row: row.New().Set("value", "x"), column: "key"},
		{name: "unknown column", row: createRow(1).Set("extra", 1), column: "extra"},
		{name: "wrong type", row: row.New().Set("key", "one"), column: "key"},
		{name: "out of range", row: row.New().Set("key", int64(1) << 40), column: "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.WriteRow(ctx, tt.row)
			var mismatch *SchemaMismatchError
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, tt.column, mismatch.Column)
			assert.ErrorIs(t, err, row.ErrSchemaMismatch)
		})
	}
}

func TestSchemaRoundTrip(t *testing.T) {
	ctx := context.Background()
	desc, err := table.NewDescriptor("sensor.readings").
		Mode(table.ModeInsert).
		CreateIfNotExist(true).
		AddColumn(
			table.NewColumn("sensor", table.TypeBinary).Key(true).Build(),
			table.NewColumn("ts", table.TypeUnixTimeMicros).Key(true).RangeKey(true).Build(),
			table.NewColumn("reading", table.TypeDouble).Build(),
			table.NewColumn("unit", table.TypeString).Nullable(true).Build(),
			table.NewColumn("valid", table.TypeBool).Build(),
			table.NewColumn("raw.bytes", table.TypeInt16).Nullable(true).Build(),
		).
		Build()
	require.NoError(t, err)

	c := newContext(t, newStore(t), desc)
	got, err := c.Schema(ctx)
	require.NoError(t, err)
	assert.Equal(t, desc.Name(), got.Name())
	assert.Equal(t, desc.Columns(), got.Columns())
	assert.Equal(t, desc.Mode(), got.Mode())
	assert.Equal(t, desc.PrimaryKeyDefinition(), got.PrimaryKeyDefinition())

	t.Run("dotted column names are written verbatim", func(t *testing.T) {
		ok, err := c.WriteRow(ctx, row.FromMap(map[string]any{
			"sensor":    []byte{0xde, 0xad},
			"ts":        time.UnixMicro(1_700_000_000_000_000),
			"reading":   21.5,
			"valid":     true,
			"raw.bytes": int16(-7),
		}))
		require.NoError(t, err)
		require.True(t, ok)

		rows, err := c.ReadRows(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int16(-7), rows[0]["raw.bytes"])
		assert.Equal(t, []byte{0xde, 0xad}, rows[0]["sensor"])
	})
}

func TestWriteTimeout(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	slow := &slowClient{Client: store, delay: time.Second}
	c := newContext(t, slow, testingTable(t, "testing", table.ModeUpsert, true), WithWriteTimeout(20*time.Millisecond))

	_, err := c.WriteRow(ctx, createRow(1))
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 20*time.Millisecond, timeout.Timeout)

	t.Run("caller deadline is a timeout", func(t *testing.T) {
		slow := &slowClient{Client: newStore(t), delay: time.Second}
		c := newContext(t, slow, testingTable(t, "testing", table.ModeUpsert, true))

		dctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := c.WriteRow(dctx, createRow(3))
		var timeout *TimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.LessOrEqual(t, timeout.Timeout, 20*time.Millisecond)
	})

	t.Run("caller cancellation is not a timeout", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.WriteRow(cctx, createRow(2))
		require.Error(t, err)
		assert.False(t, errors.As(err, &timeout))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	store, err := ddbstore.New(ddbstore.StoreOptions{InMemory: true})
	require.NoError(t, err)

	c, err := New(ctx, store, testingTable(t, "testing", table.ModeUpsert, true), WithCloser(store))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "close is idempotent")
	assert.Equal(t, StateClosed, c.State())

	_, err = c.WriteRow(ctx, createRow(1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Exists(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Delete(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.ReadRows(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.Create(ctx), ErrClosed)
}

func TestConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	c := newContext(t, newStore(t), testingTable(t, "testing", table.ModeUpsert, true))

	var wg sync.WaitGroup
	for i := int32(0); i < 50; i++ {
		wg.Add(1)
		go func(key int32) {
			defer wg.Done()
			ok, err := c.WriteRow(ctx, createRow(key))
			assert.NoError(t, err)
			assert.True(t, ok)
		}(i)
	}
	wg.Wait()

	rows, err := c.ReadRows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 50)
}

func TestNewValidation(t *testing.T) {
	_, err := New(context.Background(), newStore(t), table.TableDescriptor{})
	assert.ErrorIs(t, err, table.ErrValidation)

	_, err = New(context.Background(), nil, testingTable(t, "testing", table.ModeUpsert, true))
	assert.Error(t, err)
}

func TestStoreUnavailable(t *testing.T) {
	cause := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	client := &unreachableClient{Client: newStore(t), err: &smithyhttp.RequestSendError{Err: cause}}

	_, err := New(context.Background(), client, testingTable(t, "testing", table.ModeUpsert, true))
	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "describe table", unavailable.Op)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, errors.Unwrap(err), cause)

	t.Run("api errors are not unavailability", func(t *testing.T) {
		client := &unreachableClient{Client: newStore(t), err: &types.InternalServerError{Message: aws.String("boom")}}
		_, err := New(context.Background(), client, testingTable(t, "testing", table.ModeUpsert, true))
		require.Error(t, err)
		assert.False(t, errors.As(err, &unavailable))
		var internal *types.InternalServerError
		assert.ErrorAs(t, err, &internal)
	})
}

// unreachableClient fails every DescribeTable call with err.
type unreachableClient struct {
	ddbiface.Client
	err error
}

func (u *unreachableClient) DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return nil, u.err
}

// slowClient delays item writes until the delay passes or the context ends.
type slowClient struct {
	ddbiface.Client
	delay time.Duration
}

func (s *slowClient) wait(ctx context.Context) error {
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slowClient) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Client.UpdateItem(ctx, params, optFns...)
}

func (s *slowClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	return s.Client.PutItem(ctx, params, optFns...)
}
