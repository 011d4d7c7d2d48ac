package table

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// DescriptorYAML is the declarative form of a TableDescriptor.
//
//	name: events
//	mode: UPSERT
//	createIfNotExist: true
//	columns:
//	  - {name: id, type: INT64, key: true}
//	  - {name: ts, type: UNIXTIME_MICROS, key: true, rangeKey: true}
//	  - {name: payload, type: STRING, nullable: true}
type DescriptorYAML struct {
	Name             string       `yaml:"name"`
	Mode             string       `yaml:"mode,omitempty"`
	CreateIfNotExist bool         `yaml:"createIfNotExist,omitempty"`
	Columns          []ColumnYAML `yaml:"columns"`
}

type ColumnYAML struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Key      bool   `yaml:"key,omitempty"`
	RangeKey bool   `yaml:"rangeKey,omitempty"`
	Nullable bool   `yaml:"nullable,omitempty"`
}

// ParseDescriptorYAML decodes and validates a descriptor. Unknown fields are rejected.
func ParseDescriptorYAML(data []byte) (TableDescriptor, error) {
	var doc DescriptorYAML
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return TableDescriptor{}, fmt.Errorf("decode descriptor yaml: %w", err)
	}

	b := NewDescriptor(doc.Name).CreateIfNotExist(doc.CreateIfNotExist)
	if doc.Mode != "" {
		m, err := ParseWriteMode(doc.Mode)
		if err != nil {
			return TableDescriptor{}, invalid(doc.Name, "", err.Error())
		}
		b.Mode(m)
	}
	for _, c := range doc.Columns {
		typ, err := ParseColumnType(c.Type)
		if err != nil {
			return TableDescriptor{}, invalid(doc.Name, c.Name, err.Error())
		}
		b.AddColumn(NewColumn(c.Name, typ).Key(c.Key).RangeKey(c.RangeKey).Nullable(c.Nullable).Build())
	}
	return b.Build()
}

// MarshalYAML renders the descriptor in the form ParseDescriptorYAML reads.
func (d TableDescriptor) MarshalYAML() (any, error) {
	doc := DescriptorYAML{
		Name:             d.name,
		Mode:             string(d.mode),
		CreateIfNotExist: d.createIfNotExist,
		Columns:          make([]ColumnYAML, len(d.columns)),
	}
	for i, c := range d.columns {
		doc.Columns[i] = ColumnYAML{
			Name:     c.Name,
			Type:     string(c.Type),
			Key:      c.Key,
			RangeKey: c.RangeKey,
			Nullable: c.Nullable,
		}
	}
	return doc, nil
}
