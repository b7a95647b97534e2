// Package unify resolves one concrete Arrow type per field from the values a
// field was observed with, and combines per-block resolutions into a single
// schema.
//
// The type set is closed: null, boolean, int64, float64, utf8, timestamp[s],
// list, and struct. Types form a lattice under promotion with null as the
// bottom element:
//
//	null    < every type
//	int64   < float64
//	timestamp[s] < utf8  (a string column is a timestamp only while every
//	                      observed value parses as one)
//	list(a) < list(b)    when a < b, struct merges field-wise
//
// Unification is a pure join on that lattice: commutative and associative at
// the type level, so folding per-block schemas in block order yields the same
// result no matter how the blocks were scheduled. Struct field *order* is the
// only order-sensitive part (first seen wins), and block-order folding keeps
// it deterministic.
package unify

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/johanpel/arrow/internal/parse"
)

// TimestampSecond is the one timestamp type inference produces. Seconds is
// the coarsest unit that round-trips every recognized layout: layouts with
// sub-second precision are not recognized at all and stay utf8.
var TimestampSecond = &arrow.TimestampType{Unit: arrow.Second}

// timestampLayouts are the recognized date/time patterns, tried in order:
// date-only, date + wall clock with 'T' or space separator, optional zone.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp reports whether s is a recognized date/time string and
// returns its value. Strings carrying sub-second precision are rejected so
// that a seconds-unit column always round-trips losslessly.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Nanosecond() != 0 {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// IncompatibleTypesError reports two observations of a field that have no
// join in the lattice, e.g. a scalar in one record and a struct in another.
type IncompatibleTypesError struct {
	// Field is the dotted path of the offending field.
	Field string
	Left  arrow.DataType
	Right arrow.DataType
}

func (e *IncompatibleTypesError) Error() string {
	return fmt.Sprintf("field %q: incompatible types %s and %s", e.Field, e.Left, e.Right)
}

// InferValue returns the type of a single tagged value. Arrays infer their
// element type by unifying all elements; objects infer a struct field-wise.
// path is only used to locate errors.
func InferValue(v parse.Value, path string) (arrow.DataType, error) {
	switch v.Kind {
	case parse.KindNull:
		return arrow.Null, nil
	case parse.KindBool:
		return arrow.FixedWidthTypes.Boolean, nil
	case parse.KindNumber:
		if isIntegral(v.Num.String()) {
			return arrow.PrimitiveTypes.Int64, nil
		}
		return arrow.PrimitiveTypes.Float64, nil
	case parse.KindString:
		if _, ok := ParseTimestamp(v.Str); ok {
			return TimestampSecond, nil
		}
		return arrow.BinaryTypes.String, nil
	case parse.KindArray:
		var elem arrow.DataType = arrow.Null
		for _, e := range v.Arr {
			et, err := InferValue(e, path)
			if err != nil {
				return nil, err
			}
			elem, err = Unify(path, elem, et)
			if err != nil {
				return nil, err
			}
		}
		return arrow.ListOf(elem), nil
	case parse.KindObject:
		fields := make([]arrow.Field, 0, len(v.Obj.Fields))
		index := make(map[string]int, len(v.Obj.Fields))
		for _, f := range v.Obj.Fields {
			ft, err := InferValue(f.Val, path+"."+f.Name)
			if err != nil {
				return nil, err
			}
			if i, ok := index[f.Name]; ok {
				// Duplicate key inside one object: unify in place.
				ft, err = Unify(path+"."+f.Name, fields[i].Type, ft)
				if err != nil {
					return nil, err
				}
				fields[i].Type = ft
				continue
			}
			index[f.Name] = len(fields)
			fields = append(fields, arrow.Field{Name: f.Name, Type: ft, Nullable: true})
		}
		return arrow.StructOf(fields...), nil
	}
	return nil, fmt.Errorf("field %q: invalid value kind %v", path, v.Kind)
}

// isIntegral reports whether a JSON number literal denotes an integer.
// Any fraction or exponent marker makes it a float, so "3.0" widens to
// float64 the same way "3.5" does.
func isIntegral(lit string) bool {
	for i := 0; i < len(lit); i++ {
		switch lit[i] {
		case '.', 'e', 'E':
			return false
		}
	}
	return true
}

// Unify joins two observed types for the field at path.
func Unify(path string, a, b arrow.DataType) (arrow.DataType, error) {
	if arrow.TypeEqual(a, b) {
		return a, nil
	}
	if a.ID() == arrow.NULL {
		return b, nil
	}
	if b.ID() == arrow.NULL {
		return a, nil
	}

	switch {
	case isNumeric(a) && isNumeric(b):
		// int64 with float64 in either order widens to float64.
		return arrow.PrimitiveTypes.Float64, nil

	case isStringLike(a) && isStringLike(b):
		// A timestamp column stays a timestamp only while every observed
		// value parses; one plain string demotes the whole field.
		if a.ID() == arrow.STRING || b.ID() == arrow.STRING {
			return arrow.BinaryTypes.String, nil
		}
		// Both timestamps with differing parameters: take the coarser unit.
		ta := a.(*arrow.TimestampType)
		tb := b.(*arrow.TimestampType)
		unit := ta.Unit
		if tb.Unit < unit {
			unit = tb.Unit
		}
		return &arrow.TimestampType{Unit: unit}, nil

	case a.ID() == arrow.LIST && b.ID() == arrow.LIST:
		elem, err := Unify(path, a.(*arrow.ListType).Elem(), b.(*arrow.ListType).Elem())
		if err != nil {
			return nil, err
		}
		return arrow.ListOf(elem), nil

	case a.ID() == arrow.STRUCT && b.ID() == arrow.STRUCT:
		return unifyStructs(path, a.(*arrow.StructType), b.(*arrow.StructType))
	}

	return nil, &IncompatibleTypesError{Field: path, Left: a, Right: b}
}

func isNumeric(dt arrow.DataType) bool {
	return dt.ID() == arrow.INT64 || dt.ID() == arrow.FLOAT64
}

func isStringLike(dt arrow.DataType) bool {
	return dt.ID() == arrow.STRING || dt.ID() == arrow.TIMESTAMP
}

// unifyStructs merges two struct types field-wise: a's fields keep their
// positions, fields only in b are appended in b's order.
func unifyStructs(path string, a, b *arrow.StructType) (arrow.DataType, error) {
	fields := make([]arrow.Field, len(a.Fields()))
	copy(fields, a.Fields())
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}
	for _, bf := range b.Fields() {
		if i, ok := index[bf.Name]; ok {
			ft, err := Unify(path+"."+bf.Name, fields[i].Type, bf.Type)
			if err != nil {
				return nil, err
			}
			fields[i].Type = ft
			continue
		}
		fields = append(fields, bf)
	}
	return arrow.StructOf(fields...), nil
}
