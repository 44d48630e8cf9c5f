// Package namespace maintains the NVS namespace index table. Namespace
// names are regular U8 entries stored under the reserved index 0; every
// other entry refers to its namespace by index.
package namespace

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnresolved is returned when an index has no registered name.
var ErrUnresolved = errors.New("namespace: unresolved index")

// Table maps namespace indexes to names.
type Table struct {
	names map[uint8]string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{names: make(map[uint8]string)}
}

// Register binds index to name. Re-registering an index overwrites the
// previous binding; callers feed definitions in page-sequence order so that
// the newest definition wins.
func (t *Table) Register(index uint8, name string) {
	t.names[index] = name
}

// Resolve returns the name bound to index.
func (t *Table) Resolve(index uint8) (string, error) {
	name, ok := t.names[index]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnresolved, index)
	}
	return name, nil
}

// Len returns the number of registered namespaces.
func (t *Table) Len() int {
	return len(t.names)
}

// Indexes returns the registered indexes in ascending order.
func (t *Table) Indexes() []uint8 {
	out := make([]uint8, 0, len(t.names))
	for idx := range t.names {
		out = append(out, idx)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Snapshot returns a copy of the index-to-name map.
func (t *Table) Snapshot() map[uint8]string {
	out := make(map[uint8]string, len(t.names))
	for idx, name := range t.names {
		out[idx] = name
	}
	return out
}
