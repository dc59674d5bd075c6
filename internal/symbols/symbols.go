// Package symbols holds the static symbol table: the ordered set of
// tradable symbols with their small integer ids. Only symbols present in
// the table are admitted anywhere in the pipeline.
package symbols

import (
	"fmt"
	"strconv"
	"strings"
)

// Symbol is one entry of the table.
type Symbol struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Table is an immutable symbol table with id and name lookups.
type Table struct {
	symbols []Symbol
	byName  map[string]int
	ids     map[int]struct{}
}

// Parse builds a table from an id:name pair list, e.g.
// "1:EURUSD,2:USDJPY". Ids must be unique, names must be unique.
func Parse(list string) (*Table, error) {
	parts := strings.Split(list, ",")
	t := &Table{
		symbols: make([]Symbol, 0, len(parts)),
		byName:  make(map[string]int, len(parts)),
		ids:     make(map[int]struct{}, len(parts)),
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, name, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid symbol entry %q: want id:name", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil {
			return nil, fmt.Errorf("invalid symbol id in %q: %w", part, err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("empty symbol name in %q", part)
		}
		if _, dup := t.ids[id]; dup {
			return nil, fmt.Errorf("duplicate symbol id %d", id)
		}
		if _, dup := t.byName[name]; dup {
			return nil, fmt.Errorf("duplicate symbol name %q", name)
		}
		t.symbols = append(t.symbols, Symbol{ID: id, Name: name})
		t.byName[name] = id
		t.ids[id] = struct{}{}
	}

	if len(t.symbols) == 0 {
		return nil, fmt.Errorf("symbol table is empty")
	}
	return t, nil
}

// All returns the table entries in declaration order.
func (t *Table) All() []Symbol {
	out := make([]Symbol, len(t.symbols))
	copy(out, t.symbols)
	return out
}

// ID returns the id for a symbol name.
func (t *Table) ID(name string) (int, bool) {
	id, ok := t.byName[name]
	return id, ok
}

// Contains reports whether the id is a known symbol.
func (t *Table) Contains(id int) bool {
	_, ok := t.ids[id]
	return ok
}

// Len returns the number of symbols.
func (t *Table) Len() int {
	return len(t.symbols)
}
