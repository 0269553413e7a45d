// Copyright © 2018 One Concern

package repodata

import (
	jsoniter "github.com/json-iterator/go"
)

type batchEntry struct {
	filename string
	section  Section
	metadata []byte
}

// Batch is an ordered set of package entries to merge into an index.
//
// Iteration follows insertion order. Adding a filename twice replaces its metadata
// and keeps the first position.
type Batch struct {
	entries []batchEntry
	index   map[string]int
}

// NewBatch builds an empty batch
func NewBatch() *Batch {
	return &Batch{index: make(map[string]int)}
}

// Add a package entry to the batch.
//
// The filename must route to a section and the metadata must be a single JSON object.
func (b *Batch) Add(filename string, metadata []byte) error {
	section, err := SectionOf(filename)
	if err != nil {
		return err
	}
	if err = isObject(jsoniter.ConfigCompatibleWithStandardLibrary, metadata); err != nil {
		return err
	}
	value := make([]byte, len(metadata))
	copy(value, metadata)

	if i, ok := b.index[filename]; ok {
		b.entries[i].metadata = value
		return nil
	}
	b.index[filename] = len(b.entries)
	b.entries = append(b.entries, batchEntry{filename: filename, section: section, metadata: value})
	return nil
}

// Len of the batch
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Filenames in the batch, in insertion order
func (b *Batch) Filenames() []string {
	if b == nil {
		return nil
	}
	names := make([]string, 0, len(b.entries))
	for _, e := range b.entries {
		names = append(names, e.filename)
	}
	return names
}

// Get the metadata held for a filename
func (b *Batch) Get(filename string) ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	i, ok := b.index[filename]
	if !ok {
		return nil, false
	}
	return b.entries[i].metadata, true
}

// consumption tracks which batch entries have been written during one merge
type consumption struct {
	batch *Batch
	done  []bool
}

func (b *Batch) consume() *consumption {
	return &consumption{batch: b, done: make([]bool, b.Len())}
}

// take the batch value for a filename met in the document. found reports whether
// the filename belongs to the batch at all: once taken, later duplicates are dropped.
func (c *consumption) take(filename string) (metadata []byte, found, first bool) {
	if c.batch == nil {
		return nil, false, false
	}
	i, ok := c.batch.index[filename]
	if !ok {
		return nil, false, false
	}
	if c.done[i] {
		return nil, true, false
	}
	c.done[i] = true
	return c.batch.entries[i].metadata, true, true
}

// pending entries of a section, in batch order
func (c *consumption) pending(section Section) []batchEntry {
	if c.batch == nil {
		return nil
	}
	var left []batchEntry
	for i, e := range c.batch.entries {
		if !c.done[i] && e.section == section {
			left = append(left, e)
		}
	}
	return left
}

func (c *consumption) markAll(entries []batchEntry) {
	for _, e := range entries {
		c.done[c.batch.index[e.filename]] = true
	}
}
