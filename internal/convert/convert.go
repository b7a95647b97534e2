// Package convert materializes parsed records into Arrow arrays.
//
// BuildRecord turns one block's records into a record batch under the
// block's resolved schema; BuildColumn is the per-field path the table
// assembler reuses to rebuild a column under a wider unified type when a
// block resolved a narrower one. Both walk the schema, never the data: a
// record field with no home in the schema is simply not visited here (the
// unexpected-field policy already dealt with it), and a schema field with no
// value in a record becomes a null.
package convert

import (
	"fmt"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/johanpel/arrow/internal/parse"
	"github.com/johanpel/arrow/internal/unify"
)

// SchemaMismatchError reports an observed value that cannot be cast to the
// type a field resolved to. The resolved type may come from the caller's
// explicit schema or from inference over the field's other values, as when
// an integer literal overflows an int64-inferred column.
type SchemaMismatchError struct {
	// Field is the dotted path of the column.
	Field    string
	Resolved arrow.DataType
	// Got names the JSON kind of the offending value.
	Got string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("field %q: cannot convert %s value to resolved type %s", e.Field, e.Got, e.Resolved)
}

// BuildRecord builds one record batch from a block's records under schema.
// Column order follows the schema; every column has exactly len(recs) rows.
func BuildRecord(recs []parse.Record, schema *arrow.Schema, mem memory.Allocator) (arrow.Record, error) {
	cols := make([]arrow.Array, 0, schema.NumFields())
	release := func() {
		for _, c := range cols {
			c.Release()
		}
	}
	for _, f := range schema.Fields() {
		col, err := BuildColumn(recs, f, mem)
		if err != nil {
			release()
			return nil, err
		}
		cols = append(cols, col)
	}
	rec := array.NewRecord(schema, cols, int64(len(recs)))
	release()
	return rec, nil
}

// BuildColumn builds the array for one field, appending one entry per record:
// the record's value when present and castable, a null otherwise.
func BuildColumn(recs []parse.Record, field arrow.Field, mem memory.Allocator) (arrow.Array, error) {
	b := array.NewBuilder(mem, field.Type)
	defer b.Release()
	b.Reserve(len(recs))
	for _, rec := range recs {
		v, ok := rec.Get(field.Name)
		if err := appendValue(b, field.Name, field.Type, v, ok); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// appendValue appends one tagged value to b. present=false means the record
// does not carry the field at all, which lands as a null just like an
// explicit JSON null.
func appendValue(b array.Builder, path string, dt arrow.DataType, v parse.Value, present bool) error {
	if !present || v.Kind == parse.KindNull {
		b.AppendNull()
		return nil
	}

	switch bb := b.(type) {
	case *array.BooleanBuilder:
		if v.Kind == parse.KindBool {
			bb.Append(v.Bool)
			return nil
		}

	case *array.Int64Builder:
		if v.Kind == parse.KindNumber {
			if i, err := strconv.ParseInt(v.Num.String(), 10, 64); err == nil {
				bb.Append(i)
				return nil
			}
		}

	case *array.Int32Builder:
		if v.Kind == parse.KindNumber {
			if i, err := strconv.ParseInt(v.Num.String(), 10, 32); err == nil {
				bb.Append(int32(i))
				return nil
			}
		}

	case *array.Float64Builder:
		if v.Kind == parse.KindNumber {
			if f, err := strconv.ParseFloat(v.Num.String(), 64); err == nil {
				bb.Append(f)
				return nil
			}
		}

	case *array.Float32Builder:
		if v.Kind == parse.KindNumber {
			if f, err := strconv.ParseFloat(v.Num.String(), 32); err == nil {
				bb.Append(float32(f))
				return nil
			}
		}

	case *array.StringBuilder:
		if v.Kind == parse.KindString {
			bb.Append(v.Str)
			return nil
		}

	case *array.TimestampBuilder:
		if v.Kind == parse.KindString {
			if tm, ok := unify.ParseTimestamp(v.Str); ok {
				switch dt.(*arrow.TimestampType).Unit {
				case arrow.Second:
					bb.Append(arrow.Timestamp(tm.Unix()))
				case arrow.Millisecond:
					bb.Append(arrow.Timestamp(tm.UnixMilli()))
				case arrow.Microsecond:
					bb.Append(arrow.Timestamp(tm.UnixMicro()))
				default:
					bb.Append(arrow.Timestamp(tm.UnixNano()))
				}
				return nil
			}
		}

	case *array.ListBuilder:
		if v.Kind == parse.KindArray {
			bb.Append(true)
			elem := dt.(*arrow.ListType).Elem()
			vb := bb.ValueBuilder()
			vb.Reserve(len(v.Arr))
			for _, e := range v.Arr {
				if err := appendValue(vb, path, elem, e, true); err != nil {
					return err
				}
			}
			return nil
		}

	case *array.StructBuilder:
		if v.Kind == parse.KindObject {
			bb.Append(true)
			st := dt.(*arrow.StructType)
			for i, f := range st.Fields() {
				cv, ok := v.Obj.Get(f.Name)
				if err := appendValue(bb.FieldBuilder(i), path+"."+f.Name, f.Type, cv, ok); err != nil {
					return err
				}
			}
			return nil
		}

	case *array.NullBuilder:
		// A null-typed column only exists while every observation was null;
		// a non-null value reaching it is a mismatch like any other.
	}

	return &SchemaMismatchError{Field: path, Resolved: dt, Got: v.Kind.String()}
}
