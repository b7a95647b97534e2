// jsoncat reads newline-delimited JSON, resolves one schema for the whole
// stream, and prints the data back out as NDJSON with every record carrying
// the full set of columns. Useful for flattening ragged NDJSON and for
// eyeballing what schema a file infers to.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/johanpel/arrow/ndjson"
)

func main() {
	var (
		file       string
		blockSize  int
		serial     bool
		fields     string
		unexpected string
		schemaOnly bool
		normalize  bool
	)

	flag.StringVar(&file, "file", "", "input NDJSON path (default stdin)")
	flag.IntVar(&blockSize, "block-size", 1<<20, "target block size in bytes")
	flag.BoolVar(&serial, "serial", false, "convert blocks in line instead of on a worker pool")
	flag.StringVar(&fields, "fields", "", "declared fields, e.g. id:int64,name:string,ts:timestamp")
	flag.StringVar(&unexpected, "unexpected", "infer", "handling of fields absent from -fields: infer|ignore|error (ignore and error require -fields)")
	flag.BoolVar(&schemaOnly, "schema", false, "print the resolved schema and exit")
	flag.BoolVar(&normalize, "normalize", false, "normalize column names to snake_case ASCII")

	flag.Parse()

	in := io.Reader(os.Stdin)
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			fatalf("open input: %v", err)
		}
		defer f.Close()
		in = f
	}

	popt, err := parseOptions(fields, unexpected)
	if err != nil {
		fatalf("%v", err)
	}
	ropt := ndjson.ReadOptions{BlockSize: blockSize, UseThreads: !serial}

	tbl, err := ndjson.NewTableReader(memory.NewGoAllocator(), in, ropt, popt).Read()
	if err != nil {
		fatalf("read: %v", err)
	}
	defer tbl.Release()

	if normalize {
		renamed := renameColumns(tbl)
		tbl.Release()
		tbl = renamed
	}

	if schemaOnly {
		fmt.Println(tbl.Schema())
		return
	}

	if err := ndjson.WriteTable(os.Stdout, tbl); err != nil {
		fatalf("write: %v", err)
	}
}

// parseOptions turns the -fields mini syntax into a declared schema. Nested
// types are out of reach from the command line; declare top-level scalars
// and let inference handle the rest.
func parseOptions(fields, unexpected string) (ndjson.ParseOptions, error) {
	popt := ndjson.DefaultParseOptions()
	if fields == "" {
		if unexpected != "infer" {
			return popt, fmt.Errorf("-unexpected %s only applies to a declared schema, set -fields", unexpected)
		}
		return popt, nil
	}

	var fs []arrow.Field
	for _, spec := range strings.Split(fields, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(spec), ":")
		if !ok {
			return popt, fmt.Errorf("bad field spec %q, want name:type", spec)
		}
		dt, err := typeByName(typ)
		if err != nil {
			return popt, err
		}
		fs = append(fs, arrow.Field{Name: name, Type: dt, Nullable: true})
	}
	popt.ExplicitSchema = arrow.NewSchema(fs, nil)

	switch unexpected {
	case "infer":
		popt.UnexpectedFieldBehavior = ndjson.UnexpectedFieldInferType
	case "ignore":
		popt.UnexpectedFieldBehavior = ndjson.UnexpectedFieldIgnore
	case "error":
		popt.UnexpectedFieldBehavior = ndjson.UnexpectedFieldError
	default:
		return popt, fmt.Errorf("bad -unexpected value %q, want infer|ignore|error", unexpected)
	}
	return popt, nil
}

func typeByName(name string) (arrow.DataType, error) {
	switch strings.TrimSpace(name) {
	case "bool":
		return arrow.FixedWidthTypes.Boolean, nil
	case "int64":
		return arrow.PrimitiveTypes.Int64, nil
	case "float64":
		return arrow.PrimitiveTypes.Float64, nil
	case "string":
		return arrow.BinaryTypes.String, nil
	case "timestamp":
		return &arrow.TimestampType{Unit: arrow.Second}, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// renameColumns rebuilds the table under normalized column names, reusing
// the column data as-is.
func renameColumns(tbl arrow.Table) arrow.Table {
	seen := make(map[string]int, tbl.NumCols())
	fields := make([]arrow.Field, tbl.NumCols())
	cols := make([]arrow.Column, tbl.NumCols())
	for i := range fields {
		f := tbl.Schema().Field(i)
		name := normalizeColumnName(f.Name)
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		f.Name = name
		fields[i] = f
		col := arrow.NewColumn(f, tbl.Column(i).Data())
		cols[i] = *col
	}
	out := array.NewTable(arrow.NewSchema(fields, nil), cols, tbl.NumRows())
	for i := range cols {
		cols[i].Release()
	}
	return out
}

// normalizeColumnName lowercases, strips accents, and squeezes everything
// outside [a-z0-9] into single underscores.
func normalizeColumnName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

func fatalf(format string, args ...any) {
	log.Printf(format, args...)
	os.Exit(1)
}
