// Package ndjson reads newline-delimited JSON into Arrow tables.
//
// The reader splits its input into blocks on record boundaries, parses and
// converts the blocks (serially or on a worker pool), and assembles one
// table whose schema is the unification of everything observed. The table a
// given input produces is identical either way; only wall-clock time
// changes with UseThreads.
package ndjson

import (
	"github.com/apache/arrow-go/v18/arrow"
)

// UnexpectedFieldBehavior selects what happens when a field appears in the
// data but not in the explicit schema.
type UnexpectedFieldBehavior int

const (
	// UnexpectedFieldIgnore drops unexpected fields silently.
	UnexpectedFieldIgnore UnexpectedFieldBehavior = iota
	// UnexpectedFieldError fails the read on the first unexpected field.
	UnexpectedFieldError
	// UnexpectedFieldInferType infers a type for unexpected fields and
	// appends them to the schema after the declared ones.
	UnexpectedFieldInferType
)

// ParseOptions control how record contents are interpreted.
type ParseOptions struct {
	// ExplicitSchema declares field types up front. Fields it names keep
	// their declared type and lead the resulting schema; nil means infer
	// everything.
	ExplicitSchema *arrow.Schema

	// UnexpectedFieldBehavior applies to fields absent from ExplicitSchema.
	// It is only consulted when ExplicitSchema is set.
	UnexpectedFieldBehavior UnexpectedFieldBehavior
}

// DefaultParseOptions infers all types and admits unexpected fields.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{UnexpectedFieldBehavior: UnexpectedFieldInferType}
}

// ReadOptions control chunking and parallelism.
type ReadOptions struct {
	// BlockSize is the target uncompressed block size in bytes. Blocks are
	// extended past it to the next record boundary, so it also bounds the
	// longest record the reader accepts from the second block onward.
	BlockSize int

	// UseThreads converts blocks on a worker pool instead of in line.
	UseThreads bool
}

// DefaultReadOptions uses 1 MiB blocks and the worker pool.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{BlockSize: 1 << 20, UseThreads: true}
}
