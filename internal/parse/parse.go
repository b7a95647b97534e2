package parse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/johanpel/arrow/internal/scan"
)

// Behavior controls what happens to a field that is not covered by the
// caller's explicit schema.
type Behavior int8

const (
	// InferType captures the field and leaves typing to inference.
	InferType Behavior = iota
	// Ignore drops the field silently. This is an intentional data-loss
	// path, not an error.
	Ignore
	// Error fails the block on the first undeclared field.
	Error
)

// FieldSet is the name tree of an explicit schema: one node per declared
// struct level. A nil *FieldSet, or a node with nil Children, places no
// constraint on the fields below it.
type FieldSet struct {
	Children map[string]*FieldSet
}

// Options configure ParseBlock.
type Options struct {
	// Behavior applies to fields outside Declared.
	Behavior Behavior
	// Declared is the name tree of the explicit schema; nil means every
	// field is captured for inference.
	Declared *FieldSet
}

// ParseError locates a malformed record or policy violation in the input.
type ParseError struct {
	// Off is the absolute byte offset near the offending input.
	Off int64
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("json parse error at offset %d: %s", e.Off, e.Msg)
}

// ParseBlock parses one block into its records.
//
// Each top-level value in the block must be a JSON object; anything else is a
// *ParseError. Blank lines between records are skipped by the tokenizer, and
// an all-whitespace block yields zero records. The returned records alias
// nothing in blk.Data and are safe to hand to another goroutine.
func ParseBlock(blk scan.Block, opt Options) ([]Record, error) {
	p := &parser{
		dec:  json.NewDecoder(bytes.NewReader(blk.Data)),
		base: blk.Off,
		opt:  opt,
	}
	p.dec.UseNumber()

	var recs []Record
	for {
		tok, err := p.dec.Token()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, p.errorf("%v", err)
		}
		if d, ok := tok.(json.Delim); !ok || d != '{' {
			return nil, p.errorf("each row must be a JSON object; got %s", tokenName(tok))
		}
		rec, err := p.object(opt.Declared)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
}

type parser struct {
	dec  *json.Decoder
	base int64
	opt  Options
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Off: p.base + p.dec.InputOffset(), Msg: fmt.Sprintf(format, args...)}
}

// object consumes the members of an already-opened JSON object and the
// closing brace. set carries the declared-name constraints for this level.
func (p *parser) object(set *FieldSet) (Record, error) {
	var rec Record
	for p.dec.More() {
		tok, err := p.dec.Token()
		if err != nil {
			return Record{}, p.errorf("%v", err)
		}
		key, ok := tok.(string)
		if !ok {
			return Record{}, p.errorf("object key is not a string")
		}

		child, keep := p.admit(set, key)
		if !keep && p.opt.Behavior == Error {
			return Record{}, p.errorf("unexpected field: %q", key)
		}

		val, err := p.value(child)
		if err != nil {
			return Record{}, err
		}
		if keep {
			rec.Fields = append(rec.Fields, Field{Name: key, Val: val})
		}
	}
	// Closing '}'.
	if _, err := p.dec.Token(); err != nil {
		return Record{}, p.errorf("%v", err)
	}
	return rec, nil
}

// admit decides whether key survives the unexpected-field policy at this
// level and returns the constraint set for the field's own value.
func (p *parser) admit(set *FieldSet, key string) (child *FieldSet, keep bool) {
	if set == nil || set.Children == nil {
		return nil, true
	}
	if c, ok := set.Children[key]; ok {
		return c, true
	}
	// Undeclared at a constrained level.
	return nil, p.opt.Behavior == InferType
}

// value consumes one JSON value.
func (p *parser) value(set *FieldSet) (Value, error) {
	tok, err := p.dec.Token()
	if err != nil {
		return Value{}, p.errorf("%v", err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj, err := p.object(set)
			if err != nil {
				return Value{}, err
			}
			return Value{Kind: KindObject, Obj: obj}, nil
		case '[':
			var elems []Value
			for p.dec.More() {
				// List elements share the element constraint of the
				// declared list type, which is the same node.
				v, err := p.value(set)
				if err != nil {
					return Value{}, err
				}
				elems = append(elems, v)
			}
			if _, err := p.dec.Token(); err != nil { // ']'
				return Value{}, p.errorf("%v", err)
			}
			return Value{Kind: KindArray, Arr: elems}, nil
		}
		return Value{}, p.errorf("unexpected delimiter %q", t.String())
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Num: t}, nil
	case string:
		return Value{Kind: KindString, Str: t}, nil
	case nil:
		return Value{Kind: KindNull}, nil
	}
	return Value{}, p.errorf("unsupported token %v", tok)
}

// tokenName renders a top-level token for error messages.
func tokenName(tok json.Token) string {
	switch t := tok.(type) {
	case json.Delim:
		if t == '[' {
			return "array"
		}
		return t.String()
	case bool:
		return "bool"
	case json.Number:
		return "number"
	case string:
		return "string"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", tok)
}
