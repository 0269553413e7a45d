// Copyright © 2018 One Concern

package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"crypto/md5" //nolint:gosec
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/zstd"
	"github.com/oneconcern/condarepo/pkg/archive/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const condaIndex = `{"name":"example","version":"0.0.2","build":"0","build_number":0,"depends":[],"size":1}`

func readFixture(t testing.TB, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return b
}

func tarball(t testing.TB, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range []string{"info/about.json", IndexPath, "info/files"} {
		content, ok := files[name]
		if !ok {
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func zstdCompress(t testing.TB, b []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = enc.Write(b)
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	return buf.Bytes()
}

// condaPackage builds a .conda archive: a zip of zstd compressed tarballs
func condaPackage(t testing.TB, info map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entries := []struct {
		name    string
		content []byte
	}{
		{name: "metadata.json", content: []byte(`{"conda_pkg_format_version": 2}`)},
		{name: "pkg-example-0.0.2-0.tar.zst", content: zstdCompress(t, tarball(t, map[string]string{"info/files": "lib/example.so"}))},
	}
	if info != nil {
		entries = append(entries, struct {
			name    string
			content []byte
		}{name: "info-example-0.0.2-0.tar.zst", content: zstdCompress(t, tarball(t, info))})
	}
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestInfoIndexTarBz2(t *testing.T) {
	b, err := InfoIndex("example-0.0.1-py_0.tar.bz2", bytes.NewReader(readFixture(t, "example-0.0.1-py_0.tar.bz2")))
	require.NoError(t, err)

	var index map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(b, &index))
	assert.Equal(t, "example", index["name"])
	assert.Equal(t, "0.0.1", index["version"])
	assert.Equal(t, "linux-64", index["subdir"])
}

func TestInfoIndexConda(t *testing.T) {
	pkg := condaPackage(t, map[string]string{
		"info/about.json": `{}`,
		IndexPath:         condaIndex,
	})

	b, err := InfoIndex("example-0.0.2-0.conda", bytes.NewReader(pkg))
	require.NoError(t, err)
	assert.JSONEq(t, condaIndex, string(b))

	// without random access, the archive is spooled
	b, err = InfoIndex("example-0.0.2-0.conda", iotest.OneByteReader(bytes.NewReader(pkg)))
	require.NoError(t, err)
	assert.JSONEq(t, condaIndex, string(b))
}

func TestMetadataCondaSpool(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/spool", 0o700))
	pkg := condaPackage(t, map[string]string{IndexPath: condaIndex})

	direct, err := Metadata("example-0.0.2-0.conda", bytes.NewReader(pkg))
	require.NoError(t, err)

	spooled, err := Metadata("example-0.0.2-0.conda", iotest.HalfReader(bytes.NewReader(pkg)), SpoolTo(fs, "/spool"))
	require.NoError(t, err)
	assert.Equal(t, string(direct), string(spooled))

	left, err := afero.ReadDir(fs, "/spool")
	require.NoError(t, err)
	assert.Empty(t, left, "the spooled copy is removed")

	_, err = InfoIndex("bad.conda", iotest.OneByteReader(strings.NewReader("not a zip")), SpoolTo(fs, "/spool"))
	assert.True(t, errors.Is(err, status.ErrInvalidArchive))
	left, err = afero.ReadDir(fs, "/spool")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestInfoIndexMissing(t *testing.T) {
	_, err := InfoIndex("noindex-0.0.1-0.tar.bz2", bytes.NewReader(readFixture(t, "noindex-0.0.1-0.tar.bz2")))
	assert.True(t, errors.Is(err, status.ErrNoIndex))

	_, err = InfoIndex("example-0.0.2-0.conda", bytes.NewReader(condaPackage(t, nil)))
	assert.True(t, errors.Is(err, status.ErrNoIndex))

	_, err = InfoIndex("example-0.0.2-0.conda", bytes.NewReader(condaPackage(t, map[string]string{"info/about.json": `{}`})))
	assert.True(t, errors.Is(err, status.ErrNoIndex))
}

func TestInfoIndexInvalid(t *testing.T) {
	for _, tc := range []struct {
		name     string
		content  []byte
		expected error
	}{
		{name: "bad.tar.bz2", content: []byte("not bzip2 data"), expected: status.ErrInvalidArchive},
		{name: "bad.tar.bz2", content: readFixture(t, "example-0.0.1-py_0.tar.bz2")[:40], expected: status.ErrInvalidArchive},
		{name: "bad.conda", content: []byte("not a zip"), expected: status.ErrInvalidArchive},
		{name: "bad.zip", content: condaPackage(t, nil), expected: status.ErrUnsupported},
	} {
		_, err := InfoIndex(tc.name, bytes.NewReader(tc.content))
		require.Error(t, err)
		assert.Truef(t, errors.Is(err, tc.expected), "unexpected error for %s: %v", tc.name, err)
	}
}

func TestMetadata(t *testing.T) {
	fixture := readFixture(t, "example-0.0.1-py_0.tar.bz2")
	md5sum := md5.Sum(fixture) //nolint:gosec
	shasum := sha256.Sum256(fixture)

	b, err := Metadata("example-0.0.1-py_0.tar.bz2", iotest.HalfReader(bytes.NewReader(fixture)))
	require.NoError(t, err)

	var meta map[string]interface{}
	require.NoError(t, jsoniter.Unmarshal(b, &meta))
	assert.Equal(t, "example", meta["name"])
	assert.Equal(t, []interface{}{"python >=3.6"}, meta["depends"])
	assert.Equal(t, hex.EncodeToString(md5sum[:]), meta["md5"])
	assert.Equal(t, hex.EncodeToString(shasum[:]), meta["sha256"])
	assert.EqualValues(t, len(fixture), meta["size"])
	assert.Contains(t, string(b), `"timestamp":1617181920123`, "numbers keep their representation")
}

func TestMetadataConda(t *testing.T) {
	pkg := condaPackage(t, map[string]string{IndexPath: condaIndex})
	shasum := sha256.Sum256(pkg)

	b, err := Metadata("example-0.0.2-0.conda", bytes.NewReader(pkg))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), `{"name":"example","version":"0.0.2","build":"0","build_number":0,"depends":[],"md5":"`))
	assert.True(t, strings.HasSuffix(string(b), `,"sha256":"`+hex.EncodeToString(shasum[:])+`","size":`+strconv.Itoa(len(pkg))+`}`))
}

func TestMetadataReadFailure(t *testing.T) {
	fixture := readFixture(t, "example-0.0.1-py_0.tar.bz2")
	_, err := Metadata("example-0.0.1-py_0.tar.bz2", iotest.TimeoutReader(iotest.OneByteReader(bytes.NewReader(fixture))))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInvalidArchive))
}

func TestAnnotate(t *testing.T) {
	b, err := annotate([]byte(` { "a" : 1.50, "sha256": "old", "b": {"c": [true, null]} } `), []field{
		{name: "sha256", write: func(s *jsoniter.Stream) { s.WriteString("new") }},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1.50,"b":{"c": [true, null]},"sha256":"new"}`, string(b))

	_, err = annotate([]byte(`[]`), nil)
	assert.True(t, errors.Is(err, status.ErrInvalidArchive))

	_, err = annotate([]byte(`{"a":`), nil)
	assert.True(t, errors.Is(err, status.ErrInvalidArchive))
}
