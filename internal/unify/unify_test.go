package unify

import (
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/johanpel/arrow/internal/parse"
	"github.com/johanpel/arrow/internal/scan"
)

func records(t *testing.T, src string) []parse.Record {
	t.Helper()
	recs, err := parse.ParseBlock(scan.Block{Data: []byte(src)}, parse.Options{})
	if err != nil {
		t.Fatalf("ParseBlock(%q) error: %v", src, err)
	}
	return recs
}

//
// ---- Unify ------------------------------------------------------------------
//

func TestUnify_Lattice(t *testing.T) {
	t.Parallel()

	i64 := arrow.PrimitiveTypes.Int64
	f64 := arrow.PrimitiveTypes.Float64
	str := arrow.BinaryTypes.String
	boolean := arrow.FixedWidthTypes.Boolean

	cases := []struct {
		name string
		a, b arrow.DataType
		want arrow.DataType
	}{
		{"null_is_bottom", arrow.Null, i64, i64},
		{"same_type", str, str, str},
		{"int_float", i64, f64, f64},
		{"timestamp_timestamp", TimestampSecond, TimestampSecond, TimestampSecond},
		{"timestamp_string", TimestampSecond, str, str},
		{"list_widens_elem", arrow.ListOf(i64), arrow.ListOf(f64), arrow.ListOf(f64)},
		{"list_of_null_widens", arrow.ListOf(arrow.Null), arrow.ListOf(i64), arrow.ListOf(i64)},
		{
			"struct_merges_fields",
			arrow.StructOf(arrow.Field{Name: "a", Type: i64, Nullable: true}),
			arrow.StructOf(
				arrow.Field{Name: "a", Type: f64, Nullable: true},
				arrow.Field{Name: "b", Type: boolean, Nullable: true},
			),
			arrow.StructOf(
				arrow.Field{Name: "a", Type: f64, Nullable: true},
				arrow.Field{Name: "b", Type: boolean, Nullable: true},
			),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Unify("f", tc.a, tc.b)
			if err != nil {
				t.Fatalf("Unify(%s, %s) error: %v", tc.a, tc.b, err)
			}
			if !arrow.TypeEqual(got, tc.want) {
				t.Fatalf("Unify(%s, %s) = %s; want %s", tc.a, tc.b, got, tc.want)
			}
			// Scalar joins are commutative.
			if tc.a.ID() != arrow.STRUCT && tc.b.ID() != arrow.STRUCT {
				flipped, err := Unify("f", tc.b, tc.a)
				if err != nil {
					t.Fatalf("Unify(%s, %s) error: %v", tc.b, tc.a, err)
				}
				if !arrow.TypeEqual(flipped, tc.want) {
					t.Fatalf("Unify(%s, %s) = %s; want %s", tc.b, tc.a, flipped, tc.want)
				}
			}
		})
	}
}

func TestUnify_Associative(t *testing.T) {
	t.Parallel()

	a := arrow.Null
	b := arrow.PrimitiveTypes.Int64
	c := arrow.PrimitiveTypes.Float64

	ab, err := Unify("f", a, b)
	if err != nil {
		t.Fatal(err)
	}
	left, err := Unify("f", ab, c)
	if err != nil {
		t.Fatal(err)
	}
	bc, err := Unify("f", b, c)
	if err != nil {
		t.Fatal(err)
	}
	right, err := Unify("f", a, bc)
	if err != nil {
		t.Fatal(err)
	}
	if !arrow.TypeEqual(left, right) {
		t.Fatalf("(a⊔b)⊔c = %s, a⊔(b⊔c) = %s; want equal", left, right)
	}
}

func TestUnify_Incompatible(t *testing.T) {
	t.Parallel()

	_, err := Unify("nuf", arrow.FixedWidthTypes.Boolean, arrow.StructOf())
	var ierr *IncompatibleTypesError
	if !errors.As(err, &ierr) {
		t.Fatalf("err = %v; want *IncompatibleTypesError", err)
	}
	if ierr.Field != "nuf" {
		t.Fatalf("Field = %q; want %q", ierr.Field, "nuf")
	}
}

//
// ---- ParseTimestamp ---------------------------------------------------------
//

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	accepted := []string{
		"1970-01-01",
		"2018-11-13 17:11:10",
		"2018-11-13T17:11:10",
		"2019-04-01 09:30",
		"2018-11-13T17:11:10Z",
	}
	for _, s := range accepted {
		if _, ok := ParseTimestamp(s); !ok {
			t.Fatalf("ParseTimestamp(%q) = false; want true", s)
		}
	}

	rejected := []string{
		"",
		"hello",
		"2018-13-40",
		"17:11:10",
		// Sub-second precision does not round-trip at seconds unit.
		"2018-11-13 17:11:10.5",
	}
	for _, s := range rejected {
		if _, ok := ParseTimestamp(s); ok {
			t.Fatalf("ParseTimestamp(%q) = true; want false", s)
		}
	}
}

//
// ---- InferSchema ------------------------------------------------------------
//

func TestInferSchema_Scalars(t *testing.T) {
	t.Parallel()

	recs := records(t, `{"hello":3.5,"world":false,"yo":"thing"}
{"hello":3.25,"world":null,"yo":null}
{"hello":0.0,"world":true,"yo":"忍"}`)

	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatalf("InferSchema error: %v", err)
	}

	want := arrow.NewSchema([]arrow.Field{
		{Name: "hello", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "world", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		{Name: "yo", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	if !schema.Equal(want) {
		t.Fatalf("schema = %v; want %v", schema, want)
	}
}

func TestInferSchema_IntThenFloatWidens(t *testing.T) {
	t.Parallel()

	recs := records(t, "{\"f\":null}\n{\"f\":3}\n{\"f\":3.125}")
	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := schema.Field(0).Type; !arrow.TypeEqual(got, arrow.PrimitiveTypes.Float64) {
		t.Fatalf("f = %s; want float64", got)
	}
}

func TestInferSchema_Timestamps(t *testing.T) {
	t.Parallel()

	// Mixed date-only and date+time values still resolve to seconds.
	recs := records(t, `{"ts":null}
{"ts":"1970-01-01"}
{"ts":"2018-11-13 17:11:10"}`)
	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := schema.Field(0).Type; !arrow.TypeEqual(got, TimestampSecond) {
		t.Fatalf("ts = %s; want timestamp[s]", got)
	}

	// One unparseable string demotes the whole field.
	recs = records(t, "{\"ts\":\"1970-01-01\"}\n{\"ts\":\"not a date\"}")
	schema, err = InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := schema.Field(0).Type; !arrow.TypeEqual(got, arrow.BinaryTypes.String) {
		t.Fatalf("ts = %s; want utf8", got)
	}
}

func TestInferSchema_NestedStructWithNulls(t *testing.T) {
	t.Parallel()

	// A null for the whole struct value contributes nothing to its fields.
	recs := records(t, `{"nuf":{"ps":null}}
{"nuf":null}
{"nuf":{"ps":78}}`)
	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := arrow.StructOf(arrow.Field{Name: "ps", Type: arrow.PrimitiveTypes.Int64, Nullable: true})
	if got := schema.Field(0).Type; !arrow.TypeEqual(got, want) {
		t.Fatalf("nuf = %s; want %s", got, want)
	}
}

func TestInferSchema_ListGrowth(t *testing.T) {
	t.Parallel()

	recs := records(t, "{\"a\":[1,2,3]}\n{\"a\":[]}\n{\"a\":[4,5,6,7]}")
	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := arrow.ListOf(arrow.PrimitiveTypes.Int64)
	if got := schema.Field(0).Type; !arrow.TypeEqual(got, want) {
		t.Fatalf("a = %s; want %s", got, want)
	}
}

func TestInferSchema_FirstSeenOrder(t *testing.T) {
	t.Parallel()

	recs := records(t, "{\"z\":1}\n{\"a\":2,\"z\":3}\n{\"m\":4}")
	schema, err := InferSchema(recs, nil)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, f := range schema.Fields() {
		names = append(names, f.Name)
	}
	if len(names) != 3 || names[0] != "z" || names[1] != "a" || names[2] != "m" {
		t.Fatalf("field order = %v; want [z a m]", names)
	}
}

func TestInferSchema_DeclaredFieldsFirst(t *testing.T) {
	t.Parallel()

	declared := arrow.NewSchema([]arrow.Field{
		{Name: "nuf", Type: arrow.StructOf(
			arrow.Field{Name: "absent", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
		), Nullable: true},
		{Name: "arr", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32), Nullable: true},
	}, nil)

	recs := records(t, `{"hello":3.5,"arr":[1,2,3],"nuf":{"ps":78}}`)
	schema, err := InferSchema(recs, declared)
	if err != nil {
		t.Fatal(err)
	}

	want := arrow.NewSchema([]arrow.Field{
		{Name: "nuf", Type: arrow.StructOf(
			arrow.Field{Name: "absent", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
			arrow.Field{Name: "ps", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		), Nullable: true},
		{Name: "arr", Type: arrow.ListOf(arrow.PrimitiveTypes.Float32), Nullable: true},
		{Name: "hello", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	if !schema.Equal(want) {
		t.Fatalf("schema = %v; want %v", schema, want)
	}
}

//
// ---- UnifySchemas / Fingerprint --------------------------------------------
//

func TestUnifySchemas_AppendsNewFields(t *testing.T) {
	t.Parallel()

	a := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	b := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "y", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)

	got, err := UnifySchemas(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "y", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
	if !got.Equal(want) {
		t.Fatalf("schema = %v; want %v", got, want)
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	same := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)
	diffType := arrow.NewSchema([]arrow.Field{
		{Name: "x", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	}, nil)
	diffName := arrow.NewSchema([]arrow.Field{
		{Name: "y", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	}, nil)

	if Fingerprint(a) != Fingerprint(same) {
		t.Fatal("equal schemas produced different fingerprints")
	}
	if Fingerprint(a) == Fingerprint(diffType) {
		t.Fatal("different field types produced the same fingerprint")
	}
	if Fingerprint(a) == Fingerprint(diffName) {
		t.Fatal("different field names produced the same fingerprint")
	}
}
