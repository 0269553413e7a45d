// Copyright © 2018 One Concern

package repodata

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Merge writes to out the index document read from existing, with the entries of batch added.
//
// A batch entry replaces the document entry of the same filename, in place. Other batch entries
// are appended to the section their filename routes to, in batch order; a section the document
// lacks is created after the existing ones. Top-level fields other than sections are copied as is.
//
// When existing is nil, a new document is written with both sections present.
func Merge(existing io.Reader, out io.Writer, batch *Batch, opts ...Option) error {
	o := defaultOptions(opts)
	api := o.api()
	enc := newEncoder(out, api, o.BufferSize)
	taken := batch.consume()

	if existing == nil {
		top := enc.object()
		for _, section := range Sections {
			top.field(string(section))
			if err := writeEntries(enc, enc.object(), taken.pending(section)); err != nil {
				return err
			}
		}
		top.end()
		return enc.flush()
	}

	dec := newDecoder(existing, api, o.BufferSize)
	if err := dec.expectObject("index document"); err != nil {
		return err
	}

	var failure error
	seen := make(map[Section]bool, len(Sections))
	top := enc.object()

	dec.iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		top.field(field)
		section, isSection := sectionNamed(field)
		if !isSection {
			copyValue(iter, enc.stream)
			if iter.Error != nil {
				return false
			}
			failure = enc.flush()
			return failure == nil
		}

		seen[section] = true
		if failure = dec.expectObject("section " + field); failure != nil {
			return false
		}
		entries := enc.object()
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, filename string) bool {
			metadata, inBatch, first := taken.take(filename)
			switch {
			case !inBatch:
				entries.field(filename)
				copyValue(iter, enc.stream)
			case first:
				skipValue(api, iter)
				entries.field(filename)
				failure = enc.raw(metadata)
			default:
				skipValue(api, iter)
			}
			if failure != nil || iter.Error != nil {
				return false
			}
			failure = enc.flush()
			return failure == nil
		})
		if failure != nil || iter.Error != nil {
			return false
		}

		failure = writeEntries(enc, entries, taken.pending(section))
		taken.markAll(taken.pending(section))
		return failure == nil
	})
	if failure != nil {
		return failure
	}
	if err := dec.failure(); err != nil {
		return err
	}
	if err := dec.end(); err != nil {
		return err
	}

	for _, section := range Sections {
		left := taken.pending(section)
		if seen[section] || len(left) == 0 {
			continue
		}
		top.field(string(section))
		if err := writeEntries(enc, enc.object(), left); err != nil {
			return err
		}
		taken.markAll(left)
	}
	top.end()
	return enc.flush()
}

// writeEntries appends entries to an object, then closes it
func writeEntries(enc *encoder, obj *object, entries []batchEntry) error {
	for _, e := range entries {
		obj.field(e.filename)
		if err := enc.raw(e.metadata); err != nil {
			return err
		}
		if err := enc.flush(); err != nil {
			return err
		}
	}
	obj.end()
	return nil
}
