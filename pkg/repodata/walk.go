// Copyright © 2018 One Concern

package repodata

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Entry of an index document, as visited by Walk
type Entry struct {
	Section  Section
	Filename string
	Metadata []byte
}

// Walk visits the package entries of an index document in document order,
// holding one entry at a time. Returning false from visit stops the walk.
func Walk(existing io.Reader, visit func(Entry) bool, opts ...Option) error {
	if existing == nil {
		return errNoDocument
	}
	o := defaultOptions(opts)
	api := o.api()
	dec := newDecoder(existing, api, o.BufferSize)

	if err := dec.expectObject("index document"); err != nil {
		return err
	}

	var (
		failure error
		stopped bool
	)
	dec.iter.ReadObjectCB(func(iter *jsoniter.Iterator, field string) bool {
		section, isSection := sectionNamed(field)
		if !isSection {
			skipValue(api, iter)
			return iter.Error == nil
		}
		if failure = dec.expectObject("section " + field); failure != nil {
			return false
		}
		iter.ReadObjectCB(func(iter *jsoniter.Iterator, filename string) bool {
			raw := bufferValue(api, iter)
			if iter.Error != nil {
				return false
			}
			if !visit(Entry{Section: section, Filename: filename, Metadata: raw}) {
				stopped = true
				return false
			}
			return true
		})
		return !stopped && iter.Error == nil
	})
	if failure != nil {
		return failure
	}
	if stopped {
		return nil
	}
	return dec.end()
}

// Checksum of the entry, if any
func (e Entry) Checksum() (string, error) {
	return checksumOf(jsoniter.ConfigCompatibleWithStandardLibrary, e.Metadata)
}

// Lookup the metadata of a package filename in an index document
func Lookup(existing io.Reader, filename string, opts ...Option) (Entry, bool, error) {
	var (
		found Entry
		ok    bool
	)
	err := Walk(existing, func(e Entry) bool {
		if e.Filename == filename {
			found, ok = e, true
			return false
		}
		return true
	}, opts...)
	return found, ok, err
}
