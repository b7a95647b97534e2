package ndjson

import (
	"io"
	"runtime"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"golang.org/x/sync/errgroup"

	"github.com/johanpel/arrow/internal/convert"
	"github.com/johanpel/arrow/internal/parse"
	"github.com/johanpel/arrow/internal/scan"
	"github.com/johanpel/arrow/internal/unify"
)

// TableReader reads one stream of newline-delimited JSON records into a
// single Arrow table. It is single-shot: construct, call Read once.
type TableReader struct {
	mem  memory.Allocator
	r    io.Reader
	ropt ReadOptions
	popt ParseOptions
}

// NewTableReader wraps r. A nil mem falls back to the Go allocator, a
// non-positive BlockSize to the default.
func NewTableReader(mem memory.Allocator, r io.Reader, ropt ReadOptions, popt ParseOptions) *TableReader {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	if ropt.BlockSize <= 0 {
		ropt.BlockSize = DefaultReadOptions().BlockSize
	}
	return &TableReader{mem: mem, r: r, ropt: ropt, popt: popt}
}

// blockResult holds everything one block contributes to the table. Slots are
// allocated by the dispatcher in block order and filled by whichever worker
// converts the block, so walking the slice always visits blocks in input
// order regardless of completion order.
type blockResult struct {
	recs   []parse.Record
	schema *arrow.Schema
	fp     uint64
	rec    arrow.Record
	err    error
}

// Read consumes the whole stream and returns it as one table. The table is
// identical whether or not worker threads are used; on failure the error
// reported is the one the serial path would have hit first.
func (tr *TableReader) Read() (arrow.Table, error) {
	sp := scan.NewSplitter(tr.r, tr.ropt.BlockSize)
	popt := tr.parseOptions()

	var results []*blockResult
	if tr.ropt.UseThreads {
		var failed atomic.Bool
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for !failed.Load() {
			blk, err := sp.Next()
			if err == io.EOF {
				break
			}
			res := &blockResult{}
			results = append(results, res)
			if err != nil {
				res.err = err
				break
			}
			g.Go(func() error {
				*res = tr.convertBlock(blk, popt)
				if res.err != nil {
					failed.Store(true)
				}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for {
			blk, err := sp.Next()
			if err == io.EOF {
				break
			}
			res := &blockResult{}
			results = append(results, res)
			if err != nil {
				res.err = err
				break
			}
			*res = tr.convertBlock(blk, popt)
			if res.err != nil {
				break
			}
		}
	}
	defer releaseResults(results)

	// Blocks past the first failure may have been converted too; the
	// earliest block's error is the one the caller sees.
	for _, res := range results {
		if res.err != nil {
			return nil, res.err
		}
	}
	return tr.assemble(results)
}

// convertBlock is the per-block unit of work: parse, resolve a local schema,
// build a record batch under it.
func (tr *TableReader) convertBlock(blk scan.Block, popt parse.Options) blockResult {
	recs, err := parse.ParseBlock(blk, popt)
	if err != nil {
		return blockResult{err: err}
	}
	schema, err := unify.InferSchema(recs, tr.popt.ExplicitSchema)
	if err != nil {
		return blockResult{err: err}
	}
	rec, err := convert.BuildRecord(recs, schema, tr.mem)
	if err != nil {
		return blockResult{err: err}
	}
	return blockResult{recs: recs, schema: schema, fp: unify.Fingerprint(schema), rec: rec}
}

// assemble folds the per-block schemas into the table schema, then stitches
// the block batches into chunked columns. A block whose local type for a
// field matches the final type contributes its column as-is; otherwise the
// column is rebuilt from that block's records under the final type.
func (tr *TableReader) assemble(results []*blockResult) (arrow.Table, error) {
	var (
		schema *arrow.Schema
		fp     uint64
		rows   int64
	)
	for _, res := range results {
		rows += int64(len(res.recs))
		if schema == nil {
			schema, fp = res.schema, res.fp
			continue
		}
		if res.fp == fp {
			continue
		}
		s, err := unify.UnifySchemas(schema, res.schema)
		if err != nil {
			return nil, err
		}
		schema, fp = s, unify.Fingerprint(s)
	}
	if schema == nil {
		// No blocks at all: an empty stream.
		if schema = tr.popt.ExplicitSchema; schema == nil {
			schema = arrow.NewSchema(nil, nil)
		}
	}

	cols := make([]arrow.Column, 0, schema.NumFields())
	defer func() {
		for i := range cols {
			cols[i].Release()
		}
	}()
	for _, f := range schema.Fields() {
		col, err := tr.assembleColumn(results, f)
		if err != nil {
			return nil, err
		}
		cols = append(cols, *col)
	}
	return array.NewTable(schema, cols, rows), nil
}

func (tr *TableReader) assembleColumn(results []*blockResult, f arrow.Field) (*arrow.Column, error) {
	chunks := make([]arrow.Array, 0, len(results))
	var built []arrow.Array
	release := func() {
		for _, c := range built {
			c.Release()
		}
	}
	for _, res := range results {
		if idx := res.schema.FieldIndices(f.Name); len(idx) > 0 &&
			arrow.TypeEqual(res.schema.Field(idx[0]).Type, f.Type) {
			chunks = append(chunks, res.rec.Column(idx[0]))
			continue
		}
		c, err := convert.BuildColumn(res.recs, f, tr.mem)
		if err != nil {
			release()
			return nil, err
		}
		built = append(built, c)
		chunks = append(chunks, c)
	}
	chunked := arrow.NewChunked(f.Type, chunks)
	release()
	col := arrow.NewColumn(f, chunked)
	chunked.Release()
	return col, nil
}

func (tr *TableReader) parseOptions() parse.Options {
	opt := parse.Options{Behavior: parse.InferType}
	if tr.popt.ExplicitSchema != nil {
		opt.Declared = fieldSetForSchema(tr.popt.ExplicitSchema)
		switch tr.popt.UnexpectedFieldBehavior {
		case UnexpectedFieldIgnore:
			opt.Behavior = parse.Ignore
		case UnexpectedFieldError:
			opt.Behavior = parse.Error
		}
	}
	return opt
}

// fieldSetForSchema mirrors the declared schema as a name tree for the
// parser's unexpected-field policy. Anything nested under a declared scalar
// is admitted; type agreement is checked later, at conversion.
func fieldSetForSchema(s *arrow.Schema) *parse.FieldSet {
	set := &parse.FieldSet{Children: make(map[string]*parse.FieldSet, s.NumFields())}
	for _, f := range s.Fields() {
		set.Children[f.Name] = fieldSetForType(f.Type)
	}
	return set
}

func fieldSetForType(dt arrow.DataType) *parse.FieldSet {
	switch t := dt.(type) {
	case *arrow.StructType:
		set := &parse.FieldSet{Children: make(map[string]*parse.FieldSet, t.NumFields())}
		for _, f := range t.Fields() {
			set.Children[f.Name] = fieldSetForType(f.Type)
		}
		return set
	case *arrow.ListType:
		return fieldSetForType(t.Elem())
	default:
		return nil
	}
}

func releaseResults(results []*blockResult) {
	for _, res := range results {
		if res.rec != nil {
			res.rec.Release()
		}
	}
}

// Option adjusts the Read convenience wrapper.
type Option func(*TableReader)

// WithAllocator sets the allocator backing all arrays.
func WithAllocator(mem memory.Allocator) Option {
	return func(tr *TableReader) { tr.mem = mem }
}

// WithReadOptions replaces the default chunking and threading options.
func WithReadOptions(o ReadOptions) Option {
	return func(tr *TableReader) { tr.ropt = o }
}

// WithParseOptions replaces the default parsing options.
func WithParseOptions(o ParseOptions) Option {
	return func(tr *TableReader) { tr.popt = o }
}

// Read reads all of r into a table with default options, adjusted by opts.
func Read(r io.Reader, opts ...Option) (arrow.Table, error) {
	tr := NewTableReader(memory.DefaultAllocator, r, DefaultReadOptions(), DefaultParseOptions())
	for _, o := range opts {
		o(tr)
	}
	if tr.ropt.BlockSize <= 0 {
		tr.ropt.BlockSize = DefaultReadOptions().BlockSize
	}
	return tr.Read()
}
