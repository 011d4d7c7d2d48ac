package tabletctx

import (
	"context"
	"fmt"

	"github.com/acksell/tabletconn/dynamodb/row"
	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/acksell/tabletconn/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ReadRows scans the whole table and decodes every item with the descriptor.
// Rows come back in store order.
func (c *Context) ReadRows(ctx context.Context) ([]row.Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.state {
	case StateBoundExists:
	case StateClosed:
		return nil, ErrClosed
	default:
		return nil, ErrTableNotBound
	}

	var rows []row.Row
	p := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:      aws.String(c.desc.Name()),
		ConsistentRead: aws.Bool(true),
	})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("scan table %q: %w", c.desc.Name(), ErrTableNotFound)
			}
			return nil, wrapStoreErr("scan table", err)
		}
		for _, item := range out.Items {
			r, err := row.FromItem(c.desc, item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, r)
		}
	}
	return rows, nil
}

// Schema asks the store for the table's current layout and rebuilds a descriptor from it.
// The write mode and create-if-missing flag are carried over from this context.
func (c *Context) Schema(ctx context.Context) (table.TableDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateClosed {
		return table.TableDescriptor{}, ErrClosed
	}

	desc, err := c.schema(ctx)
	metrics.TableOperations.WithLabelValues(c.desc.Name(), "schema", metrics.Result(err)).Inc()
	return desc, err
}

func (c *Context) schema(ctx context.Context) (table.TableDescriptor, error) {
	out, err := c.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(c.desc.Name())})
	if isNotFound(err) {
		return table.TableDescriptor{}, fmt.Errorf("describe table %q: %w", c.desc.Name(), ErrTableNotFound)
	}
	if err != nil {
		return table.TableDescriptor{}, wrapStoreErr("describe table", err)
	}

	var tags []types.Tag
	input := &dynamodb.ListTagsOfResourceInput{ResourceArn: out.Table.TableArn}
	for {
		page, err := c.client.ListTagsOfResource(ctx, input)
		if err != nil {
			return table.TableDescriptor{}, wrapStoreErr("list table tags", err)
		}
		tags = append(tags, page.Tags...)
		if page.NextToken == nil {
			break
		}
		input.NextToken = page.NextToken
	}

	return table.DescriptorFromStore(out.Table, tags, c.desc.Mode(), c.desc.CreateIfNotExist())
}
