package table

import (
	"regexp"
)

const (
	// MaxKeyColumns is fixed by the store: one hash key and an optional range key.
	MaxKeyColumns = 2
	// MaxColumns bounds the schema so every column fits in one resource tag.
	MaxColumns = 50
	// DefaultMode applies when the builder is not given a write mode.
	DefaultMode = ModeUpsert
)

var (
	tableNameRe  = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,255}$`)
	columnNameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,200}$`)
)

// TableDescriptor is an immutable, validated description of one table.
// Build one with NewDescriptor.
type TableDescriptor struct {
	name             string
	columns          []ColumnDefinition
	mode             WriteMode
	createIfNotExist bool
}

func (d TableDescriptor) Name() string           { return d.name }
func (d TableDescriptor) Mode() WriteMode        { return d.mode }
func (d TableDescriptor) CreateIfNotExist() bool { return d.createIfNotExist }

// Columns returns a copy of the columns in declaration order.
func (d TableDescriptor) Columns() []ColumnDefinition {
	out := make([]ColumnDefinition, len(d.columns))
	copy(out, d.columns)
	return out
}

func (d TableDescriptor) Column(name string) (ColumnDefinition, bool) {
	for _, c := range d.columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnDefinition{}, false
}

// KeyColumns returns the key columns, hash key first.
func (d TableDescriptor) KeyColumns() []ColumnDefinition {
	var out []ColumnDefinition
	for _, c := range d.columns {
		if c.Key {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryKeyDefinition maps the key columns onto the store's key layout.
// The first key column is the hash key; a second one is the range key.
func (d TableDescriptor) PrimaryKeyDefinition() PrimaryKeyDefinition {
	var def PrimaryKeyDefinition
	for i, c := range d.KeyColumns() {
		kind, _ := c.Type.KeyKind()
		if i == 0 {
			def.PartitionKey = KeyDef{Name: c.Name, Kind: kind}
		} else {
			def.SortKey = KeyDef{Name: c.Name, Kind: kind}
		}
	}
	return def
}

func (d TableDescriptor) Definition() TableDefinition {
	return TableDefinition{Name: d.name, KeyDefinitions: d.PrimaryKeyDefinition()}
}

// WithMode returns a copy of the descriptor using another write mode.
func (d TableDescriptor) WithMode(m WriteMode) (TableDescriptor, error) {
	if !m.Valid() {
		return TableDescriptor{}, invalid(d.name, "", "unknown write mode "+string(m))
	}
	out := d
	out.columns = d.Columns()
	out.mode = m
	return out, nil
}

// DescriptorBuilder accumulates a descriptor. Build validates it.
type DescriptorBuilder struct {
	name             string
	columns          []ColumnDefinition
	mode             WriteMode
	createIfNotExist bool
}

func NewDescriptor(name string) *DescriptorBuilder {
	return &DescriptorBuilder{name: name, mode: DefaultMode}
}

func (b *DescriptorBuilder) Mode(m WriteMode) *DescriptorBuilder {
	b.mode = m
	return b
}

func (b *DescriptorBuilder) CreateIfNotExist(create bool) *DescriptorBuilder {
	b.createIfNotExist = create
	return b
}

func (b *DescriptorBuilder) AddColumn(cols ...ColumnDefinition) *DescriptorBuilder {
	b.columns = append(b.columns, cols...)
	return b
}

func (b *DescriptorBuilder) Build() (TableDescriptor, error) {
	d := TableDescriptor{
		name:             b.name,
		columns:          make([]ColumnDefinition, len(b.columns)),
		mode:             b.mode,
		createIfNotExist: b.createIfNotExist,
	}
	copy(d.columns, b.columns)
	if err := validate(d); err != nil {
		return TableDescriptor{}, err
	}
	return d, nil
}

func validate(d TableDescriptor) error {
	if !tableNameRe.MatchString(d.name) {
		return invalid(d.name, "", "table name must be 3-255 characters of [A-Za-z0-9_.-]")
	}
	if !d.mode.Valid() {
		return invalid(d.name, "", "unknown write mode "+string(d.mode))
	}
	if len(d.columns) == 0 {
		return invalid(d.name, "", "no columns declared")
	}
	if len(d.columns) > MaxColumns {
		return invalid(d.name, "", "too many columns")
	}

	seen := make(map[string]struct{}, len(d.columns))
	var keys, ranges int
	keysDone := false
	for _, c := range d.columns {
		if !columnNameRe.MatchString(c.Name) {
			return invalid(d.name, c.Name, "column name must be 1-200 characters of [A-Za-z0-9_.-]")
		}
		if _, dup := seen[c.Name]; dup {
			return invalid(d.name, c.Name, "duplicate column name")
		}
		seen[c.Name] = struct{}{}
		if !c.Type.Valid() {
			return invalid(d.name, c.Name, "unknown column type "+string(c.Type))
		}
		if c.RangeKey && !c.Key {
			return invalid(d.name, c.Name, "range key column must also be a key column")
		}
		if !c.Key {
			keysDone = true
			continue
		}
		if keysDone {
			return invalid(d.name, c.Name, "key columns must precede non-key columns")
		}
		if c.Nullable {
			return invalid(d.name, c.Name, "key column cannot be nullable")
		}
		if _, ok := c.Type.KeyKind(); !ok {
			return invalid(d.name, c.Name, "type "+string(c.Type)+" cannot be used in a key")
		}
		keys++
		if c.RangeKey {
			ranges++
		}
	}

	switch {
	case keys == 0:
		return invalid(d.name, "", "at least one key column is required")
	case keys > MaxKeyColumns:
		return invalid(d.name, "", "at most two key columns are supported")
	case ranges > 1:
		return invalid(d.name, "", "at most one range key column is supported")
	}
	if keys == MaxKeyColumns && d.columns[0].RangeKey {
		return invalid(d.name, d.columns[0].Name, "range key must be the last key column")
	}
	if keys == MaxKeyColumns && !d.columns[1].RangeKey {
		return invalid(d.name, d.columns[1].Name, "second key column must be flagged as range key")
	}
	return nil
}
