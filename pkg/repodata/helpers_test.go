// Copyright © 2018 One Concern

package repodata

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

type index map[string]map[string]map[string]interface{}

func decodeIndex(t testing.TB, doc []byte) index {
	var idx index
	require.NoError(t, jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(doc, &idx), string(doc))
	return idx
}

func testBatch(t testing.TB, pairs ...string) *Batch {
	require.Zero(t, len(pairs)%2)
	b := NewBatch()
	for i := 0; i < len(pairs); i += 2 {
		require.NoError(t, b.Add(pairs[i], []byte(pairs[i+1])))
	}
	return b
}

func mergeString(t testing.TB, existing *string, batch *Batch, opts ...Option) string {
	var (
		out bytes.Buffer
		in  io.Reader
	)
	if existing != nil {
		in = strings.NewReader(*existing)
	}
	require.NoError(t, Merge(in, &out, batch, opts...))
	return out.String()
}

func removeString(t testing.TB, existing string, sums Checksums, opts ...Option) string {
	var out bytes.Buffer
	require.NoError(t, Remove(strings.NewReader(existing), &out, sums, opts...))
	return out.String()
}

func ptr(s string) *string {
	return &s
}

// generateIndex builds a compact index document with n packages per section.
// Package i has checksum "sum-<i>" in packages and "sum-c<i>" in packages.conda.
func generateIndex(n int) string {
	var b strings.Builder
	b.WriteString(`{"packages":{`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `"pkg%d-1.0-py_%d.tar.bz2":{"build":"py_%d","depends":["python >=3.6","six"],"md5":"m%d","sha256":"sum-%d","size":%d,"timestamp":1590000000000,"noarch":null,"license":"BSD"}`,
			i, i, i, i, i, 1000+i)
	}
	b.WriteString(`},"packages.conda":{`)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `"pkg%d-1.0-py_%d.conda":{"sha256":"sum-c%d","size":%d.5,"constrains":[],"track_features":""}`, i, i, i, i)
	}
	b.WriteString(`}}`)
	return b.String()
}

type failingWriter struct {
	after int
	err   error
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, w.err
	}
	w.after--
	return len(p), nil
}
