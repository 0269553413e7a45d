// Copyright © 2018 One Concern

package repodata

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Remove writes to out the index document read from existing, without the package entries
// whose sha256 is in checksums.
//
// Entries are buffered one at a time. A section emptied by the removal is written as {},
// and absent sections stay absent. Entries without a string sha256 are kept.
func Remove(existing io.Reader, out io.Writer, checksums Checksums, opts ...Option) error {
	if existing == nil {
		return errNoDocument
	}
	o := defaultOptions(opts)
	api := o.api()
	enc := newEncoder(out, api, o.BufferSize)
	dec := newDecoder(existing, api, o.BufferSize)

	if err := dec.expectObject("index document"); err != nil {
		return err
	}

	var failure error
	top := enc.object()

	dec.iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		top.field(field)
		if _, isSection := sectionNamed(field); !isSection {
			copyValue(iter, enc.stream)
			if iter.Error != nil {
				return false
			}
			failure = enc.flush()
			return failure == nil
		}

		if failure = dec.expectObject("section " + field); failure != nil {
			return false
		}
		entries := enc.object()
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, filename string) bool {
			raw := bufferValue(api, iter)
			if iter.Error != nil {
				return false
			}
			var sum string
			if sum, failure = checksumOf(api, raw); failure != nil {
				return false
			}
			if sum != "" && checksums.Has(sum) {
				return true
			}
			entries.field(filename)
			if failure = enc.raw(raw); failure != nil {
				return false
			}
			failure = enc.flush()
			return failure == nil
		})
		if failure != nil || iter.Error != nil {
			return false
		}
		entries.end()
		return true
	})
	if failure != nil {
		return failure
	}
	if err := dec.end(); err != nil {
		return err
	}
	top.end()
	return enc.flush()
}
