// Package tabletctx binds a table descriptor to a store session and manages the
// table's lifecycle on behalf of a stream-processing connector.
//
// A Context is created with New, which makes sure the table exists (creating it when
// the descriptor asks for that). Rows are then written with WriteRow according to the
// descriptor's write mode:
//
//	UPSERT  insert, or update the supplied columns of an existing row
//	INSERT  write only when no row with the key exists
//	UPDATE  update the supplied columns only when a row with the key exists
//
// INSERT and UPDATE report a row that was skipped by returning false with a nil error.
package tabletctx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/acksell/tabletconn/dynamodb/ddbiface"
	"github.com/acksell/tabletconn/dynamodb/row"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/acksell/tabletconn/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// State is the lifecycle state of a Context.
type State int

const (
	StateUnbound State = iota
	StateBoundNotExists
	StateBoundExists
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateBoundNotExists:
		return "bound-not-exists"
	case StateBoundExists:
		return "bound-exists"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Context owns one table descriptor and one store session.
// Structural operations are serialized; WriteRow and ReadRows may run concurrently.
type Context struct {
	id     string
	client ddbiface.Client
	desc   table.TableDescriptor
	opts   options
	logger *slog.Logger

	mu    sync.RWMutex
	state State
}

// New binds desc to the store. When the table is absent it is created if the
// descriptor allows it, otherwise New fails with *UnsupportedOperationError.
func New(ctx context.Context, client ddbiface.Client, desc table.TableDescriptor, opts ...Option) (*Context, error) {
	if client == nil {
		return nil, fmt.Errorf("tabletctx: nil store client")
	}
	if desc.Name() == "" {
		return nil, &table.ValidationError{Reason: "descriptor was not built"}
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	c := &Context{
		id:     uuid.NewString(),
		client: client,
		desc:   desc,
		opts:   o,
		state:  StateUnbound,
	}
	c.logger = o.logger.With("context_id", c.id, "table", desc.Name(), "mode", string(desc.Mode()))

	c.mu.Lock()
	defer c.mu.Unlock()

	exists, err := c.describe(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		if !desc.CreateIfNotExist() {
			return nil, &UnsupportedOperationError{Op: "bind", Table: desc.Name(), Reason: "table does not exist and create-if-missing is off"}
		}
		if err := c.create(ctx); err != nil {
			return nil, err
		}
	}
	c.state = StateBoundExists
	c.logger.Debug("context bound")
	return c, nil
}

func (c *Context) ID() string                        { return c.id }
func (c *Context) Descriptor() table.TableDescriptor { return c.desc }

// Client returns the store session. Writes made through it bypass the write mode.
func (c *Context) Client() ddbiface.Client { return c.client }

// Logger returns the context's logger with its correlation attributes.
func (c *Context) Logger() *slog.Logger { return c.logger }

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Exists reports whether the table exists in the store. It never changes the store,
// only the tracked state.
func (c *Context) Exists(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false, ErrClosed
	}
	exists, err := c.describe(ctx)
	metrics.TableOperations.WithLabelValues(c.desc.Name(), "exists", metrics.Result(err)).Inc()
	if err != nil {
		return false, err
	}
	c.track(exists)
	return exists, nil
}

// Create creates the table when it is absent. It is a no-op when the table exists
// and fails with *UnsupportedOperationError when create-if-missing is off.
func (c *Context) Create(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return ErrClosed
	}
	exists, err := c.describe(ctx)
	if err != nil {
		return err
	}
	if exists {
		c.track(true)
		c.logger.Debug("table already exists, nothing to create")
		return nil
	}
	if !c.desc.CreateIfNotExist() {
		c.track(false)
		return &UnsupportedOperationError{Op: "create", Table: c.desc.Name(), Reason: "create-if-missing is off"}
	}
	if err := c.create(ctx); err != nil {
		return err
	}
	c.track(true)
	return nil
}

// Delete drops the table and waits until it is gone. Deleting a missing table
// fails with ErrTableNotFound.
func (c *Context) Delete(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false, ErrClosed
	}

	_, err := c.client.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String(c.desc.Name())})
	if err != nil {
		metrics.TableOperations.WithLabelValues(c.desc.Name(), "delete", metrics.ResultError).Inc()
		if isNotFound(err) {
			c.track(false)
			return false, fmt.Errorf("delete table %q: %w", c.desc.Name(), ErrTableNotFound)
		}
		return false, wrapStoreErr("delete table", err)
	}

	waiter := dynamodb.NewTableNotExistsWaiter(c.client, func(o *dynamodb.TableNotExistsWaiterOptions) {
		if c.opts.waiterMinDelay > 0 {
			o.MinDelay = c.opts.waiterMinDelay
			o.MaxDelay = c.opts.waiterMaxDelay
		}
	})
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.desc.Name())}, c.opts.waitTimeout)
	metrics.TableOperations.WithLabelValues(c.desc.Name(), "delete", metrics.Result(err)).Inc()
	if err != nil {
		return false, wrapStoreErr("wait for table deletion", err)
	}
	c.track(false)
	c.logger.Info("table deleted")
	return true, nil
}

// WriteRow writes one row according to the descriptor's write mode. It returns
// true when the store acknowledged the write and false when the write mode's
// condition skipped the row.
func (c *Context) WriteRow(ctx context.Context, r row.Row) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateBoundExists:
	case StateClosed:
		return false, ErrClosed
	default:
		return false, ErrTableNotBound
	}

	key, attrs, cleared, err := row.Split(c.desc, r)
	if err != nil {
		return false, err
	}

	// The caller's deadline wins when it is tighter than the write timeout.
	budget := c.opts.writeTimeout
	if dl, ok := ctx.Deadline(); ok {
		budget = max(min(budget, time.Until(dl)), 0)
	}
	wctx, cancel := context.WithTimeout(ctx, c.opts.writeTimeout)
	defer cancel()

	start := time.Now()
	ok, err := c.write(wctx, key, attrs, cleared)
	metrics.WriteDuration.WithLabelValues(c.desc.Name()).Observe(time.Since(start).Seconds())

	switch {
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(wctx.Err(), context.DeadlineExceeded)):
		metrics.RowsWritten.WithLabelValues(c.desc.Name(), string(c.desc.Mode()), metrics.ResultTimeout).Inc()
		return false, &TimeoutError{Op: "write row", Table: c.desc.Name(), Timeout: budget}
	case err != nil:
		metrics.RowsWritten.WithLabelValues(c.desc.Name(), string(c.desc.Mode()), metrics.ResultError).Inc()
		return false, wrapStoreErr("write row", err)
	case !ok:
		metrics.RowsWritten.WithLabelValues(c.desc.Name(), string(c.desc.Mode()), metrics.ResultRejected).Inc()
		c.logger.Debug("row skipped by write mode condition")
		return false, nil
	}
	metrics.RowsWritten.WithLabelValues(c.desc.Name(), string(c.desc.Mode()), metrics.ResultOK).Inc()
	return true, nil
}

// Close releases the context and the session handed over with WithCloser.
// It is safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	c.logger.Debug("context closed")
	if c.opts.closer != nil {
		return c.opts.closer.Close()
	}
	return nil
}

func (c *Context) write(ctx context.Context, key, attrs map[string]types.AttributeValue, cleared []string) (bool, error) {
	tableName := aws.String(c.desc.Name())
	hashKey := expression.NameNoDotSplit(c.desc.PrimaryKeyDefinition().PartitionKey.Name)

	var err error
	switch c.desc.Mode() {
	case table.ModeInsert:
		item := make(map[string]types.AttributeValue, len(key)+len(attrs))
		for k, v := range key {
			item[k] = v
		}
		for k, v := range attrs {
			item[k] = v
		}
		expr, buildErr := expression.NewBuilder().WithCondition(expression.AttributeNotExists(hashKey)).Build()
		if buildErr != nil {
			return false, fmt.Errorf("build insert condition: %w", buildErr)
		}
		_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:                tableName,
			Item:                     item,
			ConditionExpression:      expr.Condition(),
			ExpressionAttributeNames: expr.Names(),
		})

	case table.ModeUpdate, table.ModeUpsert:
		input := &dynamodb.UpdateItemInput{TableName: tableName, Key: key}
		builder := expression.NewBuilder()
		build := false
		if len(attrs)+len(cleared) > 0 {
			builder = builder.WithUpdate(updateFor(attrs, cleared))
			build = true
		}
		if c.desc.Mode() == table.ModeUpdate {
			builder = builder.WithCondition(expression.AttributeExists(hashKey))
			build = true
		}
		if build {
			expr, buildErr := builder.Build()
			if buildErr != nil {
				return false, fmt.Errorf("build update expression: %w", buildErr)
			}
			input.UpdateExpression = expr.Update()
			input.ConditionExpression = expr.Condition()
			input.ExpressionAttributeNames = expr.Names()
			input.ExpressionAttributeValues = expr.Values()
		}
		_, err = c.client.UpdateItem(ctx, input)

	default:
		return false, &UnsupportedOperationError{Op: "write row", Table: c.desc.Name(), Reason: "unknown write mode " + string(c.desc.Mode())}
	}

	if isConditionFailed(err) {
		return false, nil
	}
	return err == nil, err
}

// updateFor sets the supplied columns and removes the cleared ones. Columns are
// visited in name order so the rendered expression is stable.
func updateFor(attrs map[string]types.AttributeValue, cleared []string) expression.UpdateBuilder {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var update expression.UpdateBuilder
	for _, name := range names {
		update = update.Set(expression.NameNoDotSplit(name), expression.Value(rawValue{attrs[name]}))
	}
	for _, name := range cleared {
		update = update.Remove(expression.NameNoDotSplit(name))
	}
	return update
}

// rawValue passes an already converted attribute value through the expression builder.
type rawValue struct {
	av types.AttributeValue
}

func (v rawValue) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return v.av, nil
}

// describe reports whether the table exists. The caller holds c.mu.
func (c *Context) describe(ctx context.Context) (bool, error) {
	_, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.desc.Name())})
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapStoreErr("describe table", err)
	}
	return true, nil
}

// create issues CreateTable and waits for the table to become active. The caller holds c.mu.
func (c *Context) create(ctx context.Context) error {
	_, err := c.client.CreateTable(ctx, c.desc.CreateTableInput())
	switch {
	case isInUse(err):
		// Created concurrently by someone else; wait for it like our own.
		c.logger.Debug("table created concurrently")
	case err != nil:
		metrics.TableOperations.WithLabelValues(c.desc.Name(), "create", metrics.ResultError).Inc()
		return wrapStoreErr("create table", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(c.client, func(o *dynamodb.TableExistsWaiterOptions) {
		if c.opts.waiterMinDelay > 0 {
			o.MinDelay = c.opts.waiterMinDelay
			o.MaxDelay = c.opts.waiterMaxDelay
		}
	})
	err = waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.desc.Name())}, c.opts.waitTimeout)
	metrics.TableOperations.WithLabelValues(c.desc.Name(), "create", metrics.Result(err)).Inc()
	if err != nil {
		return wrapStoreErr("wait for table creation", err)
	}
	c.logger.Info("table created", "columns", len(c.desc.Columns()))
	return nil
}

// track records the table's existence unless the context is closed. The caller holds c.mu.
func (c *Context) track(exists bool) {
	if c.state == StateClosed {
		return
	}
	if exists {
		c.state = StateBoundExists
	} else {
		c.state = StateBoundNotExists
	}
}
