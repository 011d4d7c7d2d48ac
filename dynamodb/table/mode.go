package table

import (
	"fmt"
	"strings"
)

// WriteMode selects how a row write treats an existing row with the same key.
type WriteMode string

const (
	// ModeInsert writes only when no row with the key exists.
	ModeInsert WriteMode = "INSERT"
	// ModeUpdate writes only when a row with the key exists. Columns absent from the row are kept.
	ModeUpdate WriteMode = "UPDATE"
	// ModeUpsert inserts or updates. Columns absent from the row are kept on update.
	ModeUpsert WriteMode = "UPSERT"
)

func ParseWriteMode(s string) (WriteMode, error) {
	m := WriteMode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown write mode %q", s)
	}
	return m, nil
}

func (m WriteMode) Valid() bool {
	switch m {
	case ModeInsert, ModeUpdate, ModeUpsert:
		return true
	}
	return false
}
