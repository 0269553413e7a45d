// Copyright © 2018 One Concern

// Package archive reads the metadata of conda packages.
//
// Two formats are supported:
//   - .tar.bz2: a bzip2 compressed tarball
//   - .conda: a zip holding zstd compressed tarballs, the metadata being in info-*.tar.zst
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"crypto/md5" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"github.com/oneconcern/condarepo/pkg/archive/status"
	"github.com/oneconcern/condarepo/pkg/repodata"
	"github.com/spf13/afero"
)

const (
	// IndexPath of the package metadata inside the info tarball
	IndexPath = "info/index.json"

	// MaxIndexSize bounds the size of info/index.json
	MaxIndexSize = 1 << 20
)

// sizedReaderAt is satisfied by *bytes.Reader, *strings.Reader and *io.SectionReader
type sizedReaderAt interface {
	io.ReaderAt
	Size() int64
}

// InfoIndex extracts info/index.json from a package archive. The format is told by the file name.
//
// A .conda archive which is not a sizedReaderAt is spooled to a temporary file first.
func InfoIndex(name string, r io.Reader, opts ...Option) ([]byte, error) {
	section, err := repodata.SectionOf(name)
	if err != nil {
		return nil, status.ErrUnsupported.Wrap(err)
	}
	switch section {
	case repodata.Packages:
		return fromTar(bzip2.NewReader(r))
	default:
		if ra, ok := r.(sizedReaderAt); ok {
			return fromConda(ra, ra.Size())
		}
		return spooled(r, defaultOptions(opts))
	}
}

func spooled(r io.Reader, o options) ([]byte, error) {
	f, err := afero.TempFile(o.fs, o.dir, "condarepo-*"+repodata.CondaExt)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
		_ = o.fs.Remove(f.Name())
	}()

	size, err := io.Copy(f, r)
	if err != nil {
		return nil, status.ErrInvalidArchive.Wrap(err)
	}
	return fromConda(f, size)
}

func fromTar(r io.Reader) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, status.ErrNoIndex
		}
		if err != nil {
			return nil, status.ErrInvalidArchive.Wrap(err)
		}
		if hdr.Typeflag != tar.TypeReg || path.Clean(hdr.Name) != IndexPath {
			continue
		}
		if hdr.Size > MaxIndexSize {
			return nil, status.ErrInvalidArchive.WrapMessage("info/index.json is too large")
		}
		b, err := io.ReadAll(io.LimitReader(tr, MaxIndexSize))
		if err != nil {
			return nil, status.ErrInvalidArchive.Wrap(err)
		}
		return b, nil
	}
}

func fromConda(r io.ReaderAt, size int64) ([]byte, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, status.ErrInvalidArchive.Wrap(err)
	}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "info-") || !strings.HasSuffix(f.Name, ".tar.zst") {
			continue
		}
		return fromZstd(f)
	}
	return nil, status.ErrNoIndex
}

func fromZstd(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, status.ErrInvalidArchive.Wrap(err)
	}
	defer func() { _ = rc.Close() }()

	dec, err := zstd.NewReader(rc)
	if err != nil {
		return nil, status.ErrInvalidArchive.Wrap(err)
	}
	defer dec.Close()
	return fromTar(dec)
}

// Metadata extracts the package metadata of an archive and adds its checksums and size:
// the resulting entry is ready to be merged in an index.
func Metadata(name string, r io.Reader, opts ...Option) ([]byte, error) {
	var (
		md5sum = md5.New() //nolint:gosec
		shasum = sha256.New()
		count  = &counter{}
		sums   = io.MultiWriter(md5sum, shasum, count)
	)

	var (
		index []byte
		err   error
	)
	if ra, ok := r.(sizedReaderAt); ok {
		if _, err = io.Copy(sums, io.NewSectionReader(ra, 0, ra.Size())); err != nil {
			return nil, status.ErrInvalidArchive.Wrap(err)
		}
		if index, err = InfoIndex(name, io.NewSectionReader(ra, 0, ra.Size()), opts...); err != nil {
			return nil, err
		}
	} else {
		tee := io.TeeReader(r, sums)
		if index, err = InfoIndex(name, tee, opts...); err != nil {
			return nil, err
		}
		// the checksums cover the whole archive, not only the part read to find the index
		if _, err = io.Copy(io.Discard, tee); err != nil {
			return nil, status.ErrInvalidArchive.Wrap(err)
		}
	}

	return annotate(index, []field{
		{name: "md5", write: func(s *jsoniter.Stream) { s.WriteString(hex.EncodeToString(md5sum.Sum(nil))) }},
		{name: repodata.ChecksumField, write: func(s *jsoniter.Stream) { s.WriteString(hex.EncodeToString(shasum.Sum(nil))) }},
		{name: "size", write: func(s *jsoniter.Stream) { s.WriteInt64(count.n) }},
	})
}

type counter struct {
	n int64
}

func (c *counter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

type field struct {
	name  string
	write func(*jsoniter.Stream)
}

// annotate replaces or appends fields to a JSON object
func annotate(raw []byte, fields []field) ([]byte, error) {
	replaced := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		replaced[f.name] = struct{}{}
	}

	api := jsoniter.ConfigDefault
	iter := api.BorrowIterator(raw)
	defer api.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, status.ErrInvalidArchive.WrapMessage("info/index.json is not an object")
	}

	var buf bytes.Buffer
	stream := api.BorrowStream(&buf)
	defer api.ReturnStream(stream)

	stream.WriteObjectStart()
	first := true
	iter.ReadObjectCB(func(it *jsoniter.Iterator, name string) bool {
		value := it.SkipAndReturnBytes()
		if _, ok := replaced[name]; ok {
			return it.Error == nil
		}
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(name)
		stream.WriteRaw(string(bytes.TrimSpace(value)))
		return it.Error == nil
	})
	if iter.Error != nil {
		return nil, status.ErrInvalidArchive.Wrap(iter.Error)
	}
	for _, f := range fields {
		if !first {
			stream.WriteMore()
		}
		first = false
		stream.WriteObjectField(f.name)
		f.write(stream)
	}
	stream.WriteObjectEnd()
	if err := stream.Flush(); err != nil {
		return nil, status.ErrInvalidArchive.Wrap(err)
	}
	return append([]byte(nil), buf.Bytes()...), nil
}
