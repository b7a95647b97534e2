// Package scan splits a byte stream of newline-delimited JSON into blocks
// that start and end on record boundaries, so each block can be parsed
// independently of every other block.
//
// Contract:
//
//   - A block never bisects a record: after reading roughly the target number
//     of bytes, the splitter extends the block to the next record terminator.
//   - Terminators are '\n' or "\r\n"; blank lines between records are
//     separators, not empty records (the parser skips them).
//   - The trailing terminator is optional: a stream ending mid-line still
//     yields a final, valid block.
//   - The final block may be shorter than the target size and may contain no
//     records at all (trailing whitespace only). That is not an error.
//
// The splitter owns the stream read position and must be driven from a single
// goroutine; downstream processing of the returned blocks is free to fan out.
package scan

import (
	"bufio"
	"bytes"
	"io"
)

// utf8BOM is the byte-order mark some producers prepend to UTF-8 text.
// It is stripped from the head of the stream so the first record parses clean.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Block is an immutable, record-aligned byte range of the input.
//
// Seq is the zero-based position of the block in stream order; Off is the
// absolute byte offset of Data[0] in the input (after BOM stripping). Both
// are used to keep results and errors deterministic when blocks are
// processed out of order.
type Block struct {
	Seq  int
	Off  int64
	Data []byte
}

// Splitter reads record-aligned blocks from an io.Reader.
type Splitter struct {
	r       *bufio.Reader
	target  int
	off     int64
	seq     int
	started bool
}

// NewSplitter returns a Splitter producing blocks of at least target bytes
// (except the last). A non-positive target is treated as 1, which degenerates
// to one line per block.
func NewSplitter(r io.Reader, target int) *Splitter {
	if target < 1 {
		target = 1
	}
	bufSize := target
	if bufSize < 64<<10 {
		bufSize = 64 << 10
	}
	return &Splitter{
		r:      bufio.NewReaderSize(r, bufSize),
		target: target,
	}
}

// Next returns the next block of the stream.
//
// It reads up to the target size and then keeps reading to the next '\n' so
// the block boundary lands on a record terminator. io.EOF is returned once
// the stream is exhausted; any other error is an I/O failure from the
// underlying reader.
func (s *Splitter) Next() (Block, error) {
	if !s.started {
		s.started = true
		if err := s.skipBOM(); err != nil && err != io.EOF {
			return Block{}, err
		}
	}

	buf := make([]byte, s.target)
	n, err := io.ReadFull(s.r, buf)
	if err == io.EOF {
		return Block{}, io.EOF
	}
	if err != nil && err != io.ErrUnexpectedEOF {
		return Block{}, err
	}
	buf = buf[:n]

	// Extend to the next terminator unless the read already ended on one or
	// the stream is done (trailing terminator is optional).
	if err == nil && (n == 0 || buf[n-1] != '\n') {
		rest, rerr := s.r.ReadBytes('\n')
		buf = append(buf, rest...)
		if rerr != nil && rerr != io.EOF {
			return Block{}, rerr
		}
	}

	blk := Block{Seq: s.seq, Off: s.off, Data: buf}
	s.seq++
	s.off += int64(len(buf))
	return blk, nil
}

// skipBOM drops a UTF-8 byte-order mark from the head of the stream.
func (s *Splitter) skipBOM() error {
	head, err := s.r.Peek(len(utf8BOM))
	if err != nil && len(head) < len(utf8BOM) {
		return err
	}
	if bytes.Equal(head, utf8BOM) {
		if _, err := s.r.Discard(len(utf8BOM)); err != nil {
			return err
		}
	}
	return nil
}
