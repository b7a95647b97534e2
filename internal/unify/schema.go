package unify

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/zeebo/xxh3"

	"github.com/johanpel/arrow/internal/parse"
)

// InferSchema resolves one block's schema from its records.
//
// Field order is the caller-facing contract: fields declared in the explicit
// schema come first, in declaration order, whether or not any record carries
// them; undeclared fields follow in first-seen order. Declared field types
// win over observation for scalars; declared struct fields have their
// undeclared children inferred and appended, recursively.
func InferSchema(recs []parse.Record, declared *arrow.Schema) (*arrow.Schema, error) {
	type slot struct {
		name     string
		observed arrow.DataType
	}

	var order []*slot
	index := make(map[string]*slot)
	add := func(name string) *slot {
		if s, ok := index[name]; ok {
			return s
		}
		s := &slot{name: name, observed: arrow.Null}
		index[name] = s
		order = append(order, s)
		return s
	}

	if declared != nil {
		for _, f := range declared.Fields() {
			add(f.Name)
		}
	}

	for _, rec := range recs {
		for _, f := range rec.Fields {
			s := add(f.Name)
			ft, err := InferValue(f.Val, f.Name)
			if err != nil {
				return nil, err
			}
			s.observed, err = Unify(f.Name, s.observed, ft)
			if err != nil {
				return nil, err
			}
		}
	}

	fields := make([]arrow.Field, 0, len(order))
	for _, s := range order {
		dt := s.observed
		if declared != nil {
			if i := declared.FieldIndices(s.name); len(i) > 0 {
				dt = mergeDeclared(declared.Field(i[0]).Type, s.observed)
			}
		}
		fields = append(fields, arrow.Field{Name: s.name, Type: dt, Nullable: true})
	}
	return arrow.NewSchema(fields, nil), nil
}

// mergeDeclared combines a declared type with the type observed for the same
// field. Declared scalars always win; whether the observed values can
// actually be cast is checked when the chunk is built. Declared structs merge
// their field sets with inferred-but-undeclared children appended; declared
// lists recurse on the element.
func mergeDeclared(declared, observed arrow.DataType) arrow.DataType {
	switch d := declared.(type) {
	case *arrow.StructType:
		o, ok := observed.(*arrow.StructType)
		if !ok {
			return declared
		}
		fields := make([]arrow.Field, len(d.Fields()))
		copy(fields, d.Fields())
		index := make(map[string]int, len(fields))
		for i, f := range fields {
			index[f.Name] = i
		}
		for _, of := range o.Fields() {
			if i, ok := index[of.Name]; ok {
				fields[i].Type = mergeDeclared(fields[i].Type, of.Type)
				continue
			}
			fields = append(fields, of)
		}
		return arrow.StructOf(fields...)
	case *arrow.ListType:
		if o, ok := observed.(*arrow.ListType); ok {
			return arrow.ListOf(mergeDeclared(d.Elem(), o.Elem()))
		}
		return declared
	default:
		return declared
	}
}

// UnifySchemas joins two per-block schemas field-wise: a's fields keep their
// positions, fields only in b are appended in b's order. It is the fold step
// the table assembler applies in block-sequence order.
func UnifySchemas(a, b *arrow.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(a.Fields()))
	copy(fields, a.Fields())
	index := make(map[string]int, len(fields))
	for i, f := range fields {
		index[f.Name] = i
	}
	for _, bf := range b.Fields() {
		if i, ok := index[bf.Name]; ok {
			ft, err := Unify(bf.Name, fields[i].Type, bf.Type)
			if err != nil {
				return nil, err
			}
			fields[i].Type = ft
			continue
		}
		fields = append(fields, bf)
	}
	return arrow.NewSchema(fields, nil), nil
}

// Fingerprint hashes a canonical encoding of the schema. Equal schemas hash
// equal, so the assembler can skip the unification fold for the common case
// of consecutive blocks resolving identical schemas.
func Fingerprint(s *arrow.Schema) uint64 {
	var h xxh3.Hasher
	for _, f := range s.Fields() {
		_, _ = h.WriteString(f.Name)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(f.Type.String())
		_, _ = h.WriteString("\x01")
	}
	return h.Sum64()
}
