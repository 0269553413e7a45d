// Copyright © 2018 One Concern

package repodata

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/condarepo/pkg/repodata/status"
)

var errNoDocument = status.ErrMalformedIndex.WrapMessage("no index document")

// source records the first read fault of the underlying reader, so that a
// broken stream is not mistaken for a truncated document.
type source struct {
	r   io.Reader
	err error
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

type decoder struct {
	src  *source
	iter *jsoniter.Iterator
}

func newDecoder(r io.Reader, api jsoniter.API, bufferSize int) *decoder {
	src := &source{r: r}
	return &decoder{
		src:  src,
		iter: jsoniter.Parse(api, src, bufferSize),
	}
}

// failure classifies the state of the iterator
func (d *decoder) failure() error {
	if d.src.err != nil {
		return status.ErrIOFailure.Wrap(d.src.err)
	}
	switch d.iter.Error {
	case nil:
		return nil
	case io.EOF, io.ErrUnexpectedEOF:
		return status.ErrMalformedIndex.WrapMessage("unexpected end of document")
	default:
		return status.ErrMalformedIndex.Wrap(d.iter.Error)
	}
}

// expectObject checks that the next value is an object. ReadObjectCB alone accepts null.
func (d *decoder) expectObject(what string) error {
	if next := d.iter.WhatIsNext(); next != jsoniter.ObjectValue {
		if err := d.failure(); err != nil {
			return err
		}
		return status.ErrMalformedIndex.WrapMessage(fmt.Sprintf("%s is not an object", what))
	}
	return nil
}

// end checks that nothing but whitespace follows the document
func (d *decoder) end() error {
	if err := d.failure(); err != nil {
		return err
	}
	// only the end of input is acceptable: a stray delimiter is an invalid value too
	next := d.iter.WhatIsNext()
	if d.src.err != nil {
		return status.ErrIOFailure.Wrap(d.src.err)
	}
	if next != jsoniter.InvalidValue || d.iter.Error != io.EOF {
		return status.ErrMalformedIndex.WrapMessage("unexpected data after document")
	}
	return nil
}

type encoder struct {
	api    jsoniter.API
	stream *jsoniter.Stream
}

func newEncoder(w io.Writer, api jsoniter.API, bufferSize int) *encoder {
	return &encoder{
		api:    api,
		stream: jsoniter.NewStream(api, w, bufferSize),
	}
}

// flush hands buffered output over to the writer. The engine flushes after
// each entry, which bounds the memory held by the stream.
func (e *encoder) flush() error {
	if e.stream.Error != nil {
		return status.ErrIOFailure.Wrap(e.stream.Error)
	}
	if err := e.stream.Flush(); err != nil {
		return status.ErrIOFailure.Wrap(err)
	}
	return nil
}

// object starts an object which is only opened when its first field comes in,
// so that an object without fields is written as {} in any layout.
func (e *encoder) object() *object {
	return &object{stream: e.stream}
}

// raw writes a complete, buffered JSON value node by node
func (e *encoder) raw(value []byte) error {
	iter := e.api.BorrowIterator(value)
	defer e.api.ReturnIterator(iter)

	copyValue(iter, e.stream)
	if iter.Error != nil && iter.Error != io.EOF {
		return status.ErrMalformedIndex.Wrap(iter.Error)
	}
	return nil
}

type object struct {
	stream *jsoniter.Stream
	open   bool
}

func (o *object) field(name string) {
	if o.open {
		o.stream.WriteMore()
	} else {
		o.stream.WriteObjectStart()
		o.open = true
	}
	o.stream.WriteObjectField(name)
}

func (o *object) end() {
	if !o.open {
		o.stream.WriteEmptyObject()
		return
	}
	o.stream.WriteObjectEnd()
}

// copyValue reproduces the next value of the iterator on the stream. Numbers
// keep their literal representation.
func copyValue(iter *jsoniter.Iterator, stream *jsoniter.Stream) {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		obj := &object{stream: stream}
		iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
			obj.field(field)
			copyValue(it, stream)
			return it.Error == nil
		})
		obj.end()
	case jsoniter.ArrayValue:
		first := true
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			if first {
				stream.WriteArrayStart()
				first = false
			} else {
				stream.WriteMore()
			}
			copyValue(it, stream)
			return it.Error == nil
		})
		if first {
			stream.WriteEmptyArray()
		} else {
			stream.WriteArrayEnd()
		}
	case jsoniter.StringValue:
		stream.WriteString(iter.ReadString())
	case jsoniter.NumberValue:
		literal := string(iter.ReadNumber())
		if iter.Error != nil && iter.Error != io.EOF {
			return
		}
		if !validNumber(literal) {
			iter.ReportError("copyValue", "invalid number "+literal)
			return
		}
		stream.WriteRaw(literal)
	case jsoniter.BoolValue:
		stream.WriteBool(iter.ReadBool())
	case jsoniter.NilValue:
		iter.ReadNil()
		stream.WriteNil()
	default:
		if iter.Error == nil {
			iter.ReportError("copyValue", "expected a JSON value")
		}
	}
}

// validNumber checks a number literal against the JSON grammar, without
// converting it: exponents out of float range are valid.
func validNumber(literal string) bool {
	i, n := 0, len(literal)
	digits := func() int {
		start := i
		for i < n && literal[i] >= '0' && literal[i] <= '9' {
			i++
		}
		return i - start
	}

	if i < n && literal[i] == '-' {
		i++
	}
	switch {
	case i < n && literal[i] == '0':
		i++
	case digits() == 0:
		return false
	}
	if i < n && literal[i] == '.' {
		i++
		if digits() == 0 {
			return false
		}
	}
	if i < n && (literal[i] == 'e' || literal[i] == 'E') {
		i++
		if i < n && (literal[i] == '+' || literal[i] == '-') {
			i++
		}
		if digits() == 0 {
			return false
		}
	}
	return i == n
}

// skipValue moves the iterator past its next value, with the same checks as copyValue
func skipValue(api jsoniter.API, iter *jsoniter.Iterator) {
	copyValue(iter, jsoniter.NewStream(api, io.Discard, 512))
}

// bufferValue copies the next value of the iterator to memory
func bufferValue(api jsoniter.API, iter *jsoniter.Iterator) []byte {
	stream := jsoniter.NewStream(api, nil, 512)
	copyValue(iter, stream)
	return stream.Buffer()
}

// isObject tells if raw holds exactly one JSON object
func isObject(api jsoniter.API, raw []byte) error {
	iter := api.BorrowIterator(raw)
	defer api.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return status.ErrMalformedIndex.WrapMessage("package metadata is not an object")
	}
	skipValue(api, iter)
	if iter.Error != nil {
		return status.ErrMalformedIndex.Wrap(iter.Error)
	}
	if iter.WhatIsNext() != jsoniter.InvalidValue || iter.Error != io.EOF {
		return status.ErrMalformedIndex.WrapMessage("unexpected data after package metadata")
	}
	return nil
}

// checksumOf reads the sha256 field of a buffered package entry.
// Entries which are not objects, or have no string checksum, yield "".
func checksumOf(api jsoniter.API, raw []byte) (string, error) {
	iter := api.BorrowIterator(raw)
	defer api.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return "", nil
	}
	var sum string
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field == ChecksumField && it.WhatIsNext() == jsoniter.StringValue {
			sum = it.ReadString()
			return false
		}
		skipValue(api, it)
		return it.Error == nil
	})
	if sum == "" && iter.Error != nil && iter.Error != io.EOF {
		return "", status.ErrMalformedIndex.Wrap(iter.Error)
	}
	return sum, nil
}
