// Package parse turns the bytes of one record-aligned block into a sequence
// of row-major records with tagged JSON values.
//
// Parsing is a single forward pass over the block's tokens and is pure: it
// never touches other blocks and has no side effects beyond the returned
// records or error. Key order inside each object is preserved, which is what
// lets downstream schema inference keep fields in first-seen order.
package parse

import "encoding/json"

// Kind tags the JSON value variants a record field can hold. The set is
// closed; every consumer switches over it exhaustively.
type Kind int8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// String returns the JSON name of the kind, for error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "invalid"
}

// Value is a tagged JSON value. Exactly the payload selected by Kind is
// meaningful; the rest are zero. Numbers keep their raw literal so the
// int64/float64 decision downstream follows the literal's form, not a lossy
// float round-trip.
type Value struct {
	Kind Kind
	Bool bool
	Num  json.Number
	Str  string
	Arr  []Value
	Obj  Record
}

// Field is one (name, value) pair of a record, in input order.
type Field struct {
	Name string
	Val  Value
}

// Record is an ordered field list for one input row. It exists only between
// parsing and chunk building and is never mutated after ParseBlock returns.
type Record struct {
	Fields []Field
}

// Get returns the value for name and whether the record carries the field at
// all. Records are small, so a linear scan beats a map here.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Val, true
		}
	}
	return Value{}, false
}
