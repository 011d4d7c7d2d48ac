package row

import (
	"math"
	"testing"
	"time"

	"github.com/acksell/tabletconn/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescriptor(t *testing.T) table.TableDescriptor {
	t.Helper()
	d, err := table.NewDescriptor("metrics").
		AddColumn(
			table.NewColumn("host", table.TypeString).Key(true).Build(),
			table.NewColumn("ts", table.TypeUnixTimeMicros).Key(true).RangeKey(true).Build(),
			table.NewColumn("cpu", table.TypeInt8).Build(),
			table.NewColumn("load", table.TypeFloat).Build(),
			table.NewColumn("mem", table.TypeDouble).Nullable(true).Build(),
			table.NewColumn("raw", table.TypeBinary).Nullable(true).Build(),
			table.NewColumn("up", table.TypeBool).Build(),
			table.NewColumn("note", table.TypeString).Nullable(true).Build(),
		).
		Build()
	require.NoError(t, err)
	return d
}

func TestRowAccessors(t *testing.T) {
	r := New().Set("name", "a")
	SetInt(r, "n", int16(-3))

	n, err := r.Int64("n")
	require.NoError(t, err)
	assert.Equal(t, int64(-3), n)

	s, err := r.String("name")
	require.NoError(t, err)
	assert.Equal(t, "a", s)

	_, err = r.Int64("name")
	require.Error(t, err)
	_, err = r.String("missing")
	require.Error(t, err)

	assert.True(t, r.Has("n"))
	assert.Equal(t, []string{"n", "name"}, r.Columns())

	cp := FromMap(map[string]any{"x": 1})
	cp.Set("y", 2)
	assert.Len(t, cp, 2)
}

func TestToItem(t *testing.T) {
	d := testDescriptor(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 1000, time.UTC)

	t.Run("typed values", func(t *testing.T) {
		item, err := ToItem(d, Row{
			"host": "web-1",
			"ts":   ts,
			"cpu":  42,
			"load": float32(0.5),
			"raw":  []byte{1, 2},
			"up":   true,
			"note": nil,
		})
		require.NoError(t, err)
		assert.Equal(t, &types.AttributeValueMemberS{Value: "web-1"}, item["host"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "1714564800000001"}, item["ts"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "42"}, item["cpu"])
		assert.Equal(t, &types.AttributeValueMemberB{Value: []byte{1, 2}}, item["raw"])
		assert.Equal(t, &types.AttributeValueMemberBOOL{Value: true}, item["up"])
		assert.NotContains(t, item, "note")
	})

	t.Run("exact integers in float columns", func(t *testing.T) {
		item, err := ToItem(d, Row{"host": "a", "ts": int64(1), "mem": int64(1 << 53), "load": -(1 << 24)})
		require.NoError(t, err)
		assert.Equal(t, &types.AttributeValueMemberN{Value: "9007199254740992"}, item["mem"])
		assert.Equal(t, &types.AttributeValueMemberN{Value: "-16777216"}, item["load"])
	})

	errCases := []struct {
		name   string
		row    Row
		column string
	}{
		{"missing key", Row{"host": "a"}, "ts"},
		{"nil key", Row{"host": nil, "ts": int64(1)}, "host"},
		{"undeclared column", Row{"host": "a", "ts": int64(1), "disk": 3}, "disk"},
		{"int8 overflow", Row{"host": "a", "ts": int64(1), "cpu": 300}, "cpu"},
		{"wrong type", Row{"host": "a", "ts": int64(1), "up": "yes"}, "up"},
		{"nil in non-nullable", Row{"host": "a", "ts": int64(1), "up": nil}, "up"},
		{"NaN", Row{"host": "a", "ts": int64(1), "mem": math.NaN()}, "mem"},
		{"float32 overflow", Row{"host": "a", "ts": int64(1), "load": math.MaxFloat64}, "load"},
		{"huge unsigned", Row{"host": "a", "ts": uint64(math.MaxUint64)}, "ts"},
		{"inexact double", Row{"host": "a", "ts": int64(1), "mem": int64(1<<53 + 1)}, "mem"},
		{"inexact float", Row{"host": "a", "ts": int64(1), "load": 1<<24 + 1}, "load"},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ToItem(d, tc.row)
			require.ErrorIs(t, err, ErrSchemaMismatch)
			var sm *SchemaMismatchError
			require.ErrorAs(t, err, &sm)
			assert.Equal(t, tc.column, sm.Column)
			assert.Equal(t, "metrics", sm.Table)
		})
	}
}

func TestSplit(t *testing.T) {
	d := testDescriptor(t)
	key, attrs, cleared, err := Split(d, Row{"host": "h", "ts": int64(5), "up": false, "mem": nil, "note": nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]types.AttributeValue{
		"host": &types.AttributeValueMemberS{Value: "h"},
		"ts":   &types.AttributeValueMemberN{Value: "5"},
	}, key)
	assert.Equal(t, map[string]types.AttributeValue{"up": &types.AttributeValueMemberBOOL{Value: false}}, attrs)
	assert.Equal(t, []string{"mem", "note"}, cleared)
}

func TestFromItem(t *testing.T) {
	d := testDescriptor(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	in := Row{
		"host": "web-1",
		"ts":   ts,
		"cpu":  int8(-7),
		"load": float32(1.25),
		"mem":  3.5,
		"raw":  []byte("x"),
		"up":   true,
	}
	item, err := ToItem(d, in)
	require.NoError(t, err)
	item["extra"] = &types.AttributeValueMemberS{Value: "ignored"}
	item["note"] = &types.AttributeValueMemberNULL{Value: true}

	out, err := FromItem(d, item)
	require.NoError(t, err)
	in["note"] = nil
	assert.Equal(t, in, out)

	item["cpu"] = &types.AttributeValueMemberS{Value: "high"}
	_, err = FromItem(d, item)
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestValidate(t *testing.T) {
	d := testDescriptor(t)
	require.NoError(t, Validate(d, Row{"host": "a", "ts": int64(0)}))
	require.ErrorIs(t, Validate(d, Row{"ts": int64(0)}), ErrSchemaMismatch)
}
