// Copyright © 2018 One Concern

// Package tokens issues, validates and revokes bearer tokens.
//
// Tokens are kept in a single JSON document:
//
//	{"tokens": {"<token>": {"name": "<user>", "expire": <epoch millis>}}}
//
// The document is edited with the same streaming discipline as package indexes:
// it is never loaded as a whole.
package tokens

import (
	"io"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/oneconcern/condarepo/pkg/tokens/status"
)

const (
	tokensField = "tokens"
	nameField   = "name"
	expireField = "expire"

	docBufferSize = 4096
)

var api = jsoniter.Config{}.Froze()

// Item describes a token issued to a user
type Item struct {
	Token  string
	Name   string
	Expire time.Time
}

// Expired tells if the token is no longer valid at the given time
func (i Item) Expired(now time.Time) bool {
	return !now.Before(i.Expire)
}

type reader struct {
	r   io.Reader
	err error
}

func (s *reader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func failure(src *reader, iter *jsoniter.Iterator) error {
	if src.err != nil {
		return status.ErrIOFailure.Wrap(src.err)
	}
	switch iter.Error {
	case nil:
		return nil
	case io.EOF, io.ErrUnexpectedEOF:
		return status.ErrMalformedTokens.WrapMessage("unexpected end of document")
	default:
		return status.ErrMalformedTokens.Wrap(iter.Error)
	}
}

// Scan visits the tokens of a document in order, until visit returns false.
// A nil document holds no token.
func Scan(existing io.Reader, visit func(Item) bool) error {
	if existing == nil {
		return nil
	}
	src := &reader{r: existing}
	iter := jsoniter.Parse(api, src, docBufferSize)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		if err := failure(src, iter); err != nil {
			return err
		}
		return status.ErrMalformedTokens.WrapMessage("document is not an object")
	}

	var (
		err     error
		stopped bool
	)
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		if field != tokensField {
			it.Skip()
			return it.Error == nil
		}
		if it.WhatIsNext() != jsoniter.ObjectValue {
			if err = failure(src, it); err == nil {
				err = status.ErrMalformedTokens.WrapMessage("tokens is not an object")
			}
			return false
		}
		it.ReadObjectCB(func(it *jsoniter.Iterator, token string) bool {
			var item Item
			if item, err = readItem(src, it, token); err != nil {
				return false
			}
			if !visit(item) {
				stopped = true
				return false
			}
			return true
		})
		return it.Error == nil && err == nil && !stopped
	})
	if err != nil {
		return err
	}
	if stopped {
		return nil
	}
	if err = failure(src, iter); err != nil {
		return err
	}
	next := iter.WhatIsNext()
	if src.err != nil {
		return status.ErrIOFailure.Wrap(src.err)
	}
	if next != jsoniter.InvalidValue || iter.Error != io.EOF {
		return status.ErrMalformedTokens.WrapMessage("unexpected data after document")
	}
	return nil
}

func readItem(src *reader, iter *jsoniter.Iterator, token string) (Item, error) {
	item := Item{Token: token}
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		if err := failure(src, iter); err != nil {
			return item, err
		}
		return item, status.ErrMalformedTokens.WrapMessage("token " + token + " is not an object")
	}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		switch field {
		case nameField:
			item.Name = it.ReadString()
		case expireField:
			item.Expire = time.UnixMilli(it.ReadInt64())
		default:
			it.Skip()
		}
		return it.Error == nil
	})
	return item, failure(src, iter)
}

type writer struct {
	stream *jsoniter.Stream
	first  bool
}

func newWriter(out io.Writer) *writer {
	w := &writer{stream: jsoniter.NewStream(api, out, docBufferSize), first: true}
	w.stream.WriteObjectStart()
	w.stream.WriteObjectField(tokensField)
	w.stream.WriteObjectStart()
	return w
}

func (w *writer) write(item Item) error {
	if !w.first {
		w.stream.WriteMore()
	}
	w.first = false
	w.stream.WriteObjectField(item.Token)
	w.stream.WriteObjectStart()
	w.stream.WriteObjectField(nameField)
	w.stream.WriteString(item.Name)
	w.stream.WriteMore()
	w.stream.WriteObjectField(expireField)
	w.stream.WriteInt64(item.Expire.UnixMilli())
	w.stream.WriteObjectEnd()
	return w.flush()
}

func (w *writer) close() error {
	w.stream.WriteObjectEnd()
	w.stream.WriteObjectEnd()
	return w.flush()
}

func (w *writer) flush() error {
	if w.stream.Error != nil {
		return status.ErrIOFailure.Wrap(w.stream.Error)
	}
	if err := w.stream.Flush(); err != nil {
		return status.ErrIOFailure.Wrap(err)
	}
	return nil
}

// Filter copies the tokens of a document for which keep returns true.
// Fields other than tokens are not carried over.
func Filter(existing io.Reader, out io.Writer, keep func(Item) bool) error {
	w := newWriter(out)
	var werr error
	err := Scan(existing, func(item Item) bool {
		if !keep(item) {
			return true
		}
		werr = w.write(item)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	return w.close()
}

// Append copies a document and adds a token to it. An existing token with the same value is replaced.
func Append(existing io.Reader, out io.Writer, item Item) error {
	w := newWriter(out)
	var werr error
	err := Scan(existing, func(current Item) bool {
		if current.Token == item.Token {
			return true
		}
		werr = w.write(current)
		return werr == nil
	})
	if werr != nil {
		return werr
	}
	if err != nil {
		return err
	}
	if err = w.write(item); err != nil {
		return err
	}
	return w.close()
}
