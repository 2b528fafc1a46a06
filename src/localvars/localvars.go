/*
 * npeblame - bytecode-level null-pointer-exception explainer
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)
 */

// Package localvars holds a method's local-variable debug table: a slot
// index maps to the (name, type-descriptor) pair the compiler emitted,
// when debug info wasn't stripped. Absent entries are normal and indicate
// a stripped table or a synthetic slot.
package localvars

import "npeblame/descriptor"

// Entry names the variable occupying a slot for the bytecode offsets
// [StartPC, StartPC+Length). Lookup uses that range to choose among
// entries that share a slot.
type Entry struct {
	Slot     int
	Name     string
	RawDesc  string
	HumanDesc string
	StartPC  int
	Length   int
}

// Table is the per-method local-variable table. A method with no
// LocalVariableTable attribute (stripped debug info) has a nil/empty Table;
// lookups simply miss.
type Table struct {
	bySlot map[int][]Entry
}

// New builds a Table from raw (slot, name, descriptor, startPC, length)
// rows as the host adapter would deliver them, already resolved through the
// constant pool to strings.
func New(rows []Entry) (*Table, error) {
	t := &Table{bySlot: make(map[int][]Entry, len(rows))}
	for _, row := range rows {
		human, _, err := descriptor.ParseType(row.RawDesc, 0)
		if err != nil {
			return nil, err
		}
		row.HumanDesc = human
		t.bySlot[row.Slot] = append(t.bySlot[row.Slot], row)
	}
	return t, nil
}

// Empty returns a Table with no entries, representing a method compiled
// without debug info.
func Empty() *Table {
	return &Table{}
}

// Entries returns every row of the table, grouped by slot, each slot's rows
// in the order New received them; the order of the slot groups is not
// defined. Used by the host adapter to hand the table back out in the same
// row shape the class file carried it.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	var rows []Entry
	for _, entries := range t.bySlot {
		rows = append(rows, entries...)
	}
	return rows
}

// Lookup returns the entry naming slot at the given bytecode offset, and
// whether one was found. When multiple entries share a slot (variable
// reused across non-overlapping scopes) the first whose [StartPC,
// StartPC+Length) contains pc wins; if none match by range but exactly one
// entry exists for the slot, it is returned as a best-effort fallback.
func (t *Table) Lookup(slot, pc int) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	entries := t.bySlot[slot]
	if len(entries) == 0 {
		return Entry{}, false
	}
	for _, e := range entries {
		if pc >= e.StartPC && pc < e.StartPC+e.Length {
			return e, true
		}
	}
	if len(entries) == 1 {
		return entries[0], true
	}
	return Entry{}, false
}
