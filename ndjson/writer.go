package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// WriteTable writes tbl as newline-delimited JSON, one object per row, keys
// in schema order. The output reads back to the same table: field order is
// preserved, integral floats keep a decimal point so they stay float64, and
// timestamps print in a layout inference recognizes.
func WriteTable(w io.Writer, tbl arrow.Table) error {
	bw := bufio.NewWriter(w)
	rr := array.NewTableReader(tbl, 1024)
	defer rr.Release()

	var buf []byte
	for rr.Next() {
		rec := rr.Record()
		for row := 0; row < int(rec.NumRows()); row++ {
			buf = buf[:0]
			buf = append(buf, '{')
			for i, f := range rec.Schema().Fields() {
				if i > 0 {
					buf = append(buf, ',')
				}
				buf = appendQuoted(buf, f.Name)
				buf = append(buf, ':')
				var err error
				buf, err = appendCell(buf, rec.Column(i), row)
				if err != nil {
					return err
				}
			}
			buf = append(buf, '}', '\n')
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// appendCell renders one cell as a JSON value.
func appendCell(dst []byte, col arrow.Array, row int) ([]byte, error) {
	if col.IsNull(row) {
		return append(dst, "null"...), nil
	}

	switch a := col.(type) {
	case *array.Boolean:
		return strconv.AppendBool(dst, a.Value(row)), nil

	case *array.Int64:
		return strconv.AppendInt(dst, a.Value(row), 10), nil

	case *array.Int32:
		return strconv.AppendInt(dst, int64(a.Value(row)), 10), nil

	case *array.Float64:
		return appendFloat(dst, a.Value(row)), nil

	case *array.Float32:
		return appendFloat(dst, float64(a.Value(row))), nil

	case *array.String:
		return appendQuoted(dst, a.Value(row)), nil

	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		t := a.Value(row).ToTime(unit).UTC()
		return appendQuoted(dst, t.Format("2006-01-02T15:04:05Z07:00")), nil

	case *array.List:
		start, end := a.ValueOffsets(row)
		values := a.ListValues()
		dst = append(dst, '[')
		var err error
		for j := start; j < end; j++ {
			if j > start {
				dst = append(dst, ',')
			}
			dst, err = appendCell(dst, values, int(j))
			if err != nil {
				return nil, err
			}
		}
		return append(dst, ']'), nil

	case *array.Struct:
		st := a.DataType().(*arrow.StructType)
		dst = append(dst, '{')
		var err error
		for j, f := range st.Fields() {
			if j > 0 {
				dst = append(dst, ',')
			}
			dst = appendQuoted(dst, f.Name)
			dst = append(dst, ':')
			dst, err = appendCell(dst, a.Field(j), row)
			if err != nil {
				return nil, err
			}
		}
		return append(dst, '}'), nil
	}

	return nil, fmt.Errorf("cannot serialize column type %s", col.DataType())
}

// appendFloat keeps a decimal point in integral values so the literal reads
// back as float64, not int64.
func appendFloat(dst []byte, v float64) []byte {
	n := len(dst)
	dst = strconv.AppendFloat(dst, v, 'g', -1, 64)
	if !bytes.ContainsAny(dst[n:], ".eE") {
		dst = append(dst, '.', '0')
	}
	return dst
}

func appendQuoted(dst []byte, s string) []byte {
	b, _ := json.Marshal(s)
	return append(dst, b...)
}
