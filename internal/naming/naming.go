// Package naming gives every model object a unique name for the duration of
// a remote solve and restores the caller's names afterwards.
//
// A Table records the original name of every object it renames. A Scope is
// the name space of one object kind (integer variables, interval variables,
// ranges, ...): names are unique within a scope. Tables are built fresh for
// each solve and are not safe for concurrent use.
package naming

import (
	"errors"
	"fmt"

	"github.com/roach88/wmlbridge/internal/model"
)

// DuplicateNameError is returned by name-based lookups that cannot be
// answered unambiguously.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate model object name %q", e.Name)
}

// IsDuplicateName reports whether err is a DuplicateNameError.
func IsDuplicateName(err error) bool {
	var de *DuplicateNameError
	return errors.As(err, &de)
}

type record struct {
	obj      model.Object
	original string
}

// Table tracks renamed objects.
type Table struct {
	records   []record
	recorded  map[model.Object]int
	originals map[string]int
	restored  bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		recorded:  make(map[model.Object]int),
		originals: make(map[string]int),
	}
}

// Resolve returns a name for obj that is not taken.
//
// An object with a non-empty, untaken name keeps it and is not recorded.
// Otherwise the base is prefix (empty name) or the original name (taken),
// and "_1", "_2", ... is appended until the candidate is free. The object is
// renamed and its original name recorded.
func (t *Table) Resolve(obj model.Object, prefix string, taken func(string) bool) string {
	original := obj.Name()
	base := original
	if base == "" {
		base = prefix
	}
	candidate := base
	for k := 1; taken(candidate); k++ {
		candidate = fmt.Sprintf("%s_%d", base, k)
	}
	if candidate != original {
		t.Rename(obj, candidate)
	}
	return candidate
}

// Rename sets the name of obj, recording its current name the first time
// obj is seen.
func (t *Table) Rename(obj model.Object, name string) {
	if _, ok := t.recorded[obj]; !ok {
		original := obj.Name()
		t.recorded[obj] = len(t.records)
		t.records = append(t.records, record{obj: obj, original: original})
		if original != "" {
			t.originals[original]++
		}
	}
	obj.SetName(name)
	t.restored = false
}

// Original returns the recorded original name of obj.
func (t *Table) Original(obj model.Object) (string, bool) {
	i, ok := t.recorded[obj]
	if !ok {
		return "", false
	}
	return t.records[i].original, true
}

// Len returns the number of renamed objects.
func (t *Table) Len() int {
	return len(t.records)
}

// Restore writes every recorded original name back. Calling it again
// without an intervening rename does nothing.
func (t *Table) Restore() {
	if t.restored {
		return
	}
	for _, r := range t.records {
		r.obj.SetName(r.original)
	}
	t.restored = true
}

// Check fails if name was the original name of a renamed object, in which
// case a lookup by that name is ambiguous.
func (t *Table) Check(name string) error {
	if name != "" && t.originals[name] > 0 {
		return &DuplicateNameError{Name: name}
	}
	return nil
}

// Scope is one unique-name space backed by a Table.
type Scope struct {
	table  *Table
	byName map[string][]model.Object
	seen   map[model.Object]string
	order  []string
}

// Scope opens a new name space.
func (t *Table) Scope() *Scope {
	return &Scope{
		table:  t,
		byName: make(map[string][]model.Object),
		seen:   make(map[model.Object]string),
	}
}

// Add resolves obj against the names already in the scope and registers
// it. Adding the same object twice returns its existing name.
func (s *Scope) Add(obj model.Object, prefix string) string {
	if name, ok := s.seen[obj]; ok {
		return name
	}
	name := s.table.Resolve(obj, prefix, s.Has)
	s.register(obj, name)
	return name
}

// AddSequential renames obj to prefix followed by its 1-based position in
// the scope, whatever its current name.
func (s *Scope) AddSequential(obj model.Object, prefix string) string {
	if name, ok := s.seen[obj]; ok {
		return name
	}
	name := fmt.Sprintf("%s%d", prefix, len(s.seen)+1)
	s.table.Rename(obj, name)
	s.register(obj, name)
	return name
}

// Register adds obj under its current name without renaming it.
func (s *Scope) Register(obj model.Object) {
	if _, ok := s.seen[obj]; ok {
		return
	}
	s.register(obj, obj.Name())
}

func (s *Scope) register(obj model.Object, name string) {
	s.seen[obj] = name
	if len(s.byName[name]) == 0 {
		s.order = append(s.order, name)
	}
	s.byName[name] = append(s.byName[name], obj)
}

// Has reports whether name is used in the scope.
func (s *Scope) Has(name string) bool {
	return len(s.byName[name]) > 0
}

// Len returns the number of objects in the scope.
func (s *Scope) Len() int {
	return len(s.seen)
}

// Names returns the scope names in registration order.
func (s *Scope) Names() []string {
	return append([]string(nil), s.order...)
}

// Object returns the object registered under name.
func (s *Scope) Object(name string) (model.Object, bool) {
	objs := s.byName[name]
	if len(objs) != 1 {
		return nil, false
	}
	return objs[0], true
}

// Check fails when name is shared by several objects of the scope or was
// the original name of a renamed object.
func (s *Scope) Check(name string) error {
	if len(s.byName[name]) > 1 {
		return &DuplicateNameError{Name: name}
	}
	return s.table.Check(name)
}
