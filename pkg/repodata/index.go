// Copyright © 2018 One Concern

package repodata

import (
	"strings"

	"github.com/oneconcern/condarepo/pkg/repodata/status"
)

// Section of an index document
type Section string

const (
	// Packages holds .tar.bz2 packages
	Packages Section = "packages"

	// PackagesConda holds .conda packages
	PackagesConda Section = "packages.conda"

	// TarBz2Ext is the filename suffix of legacy conda archives
	TarBz2Ext = ".tar.bz2"

	// CondaExt is the filename suffix of conda v2 archives
	CondaExt = ".conda"

	// ChecksumField is the metadata field matched by Remove
	ChecksumField = "sha256"
)

// Sections in the order they are written to a new document
var Sections = []Section{Packages, PackagesConda}

// SectionOf routes a package filename to its section, by suffix
func SectionOf(filename string) (Section, error) {
	switch {
	case strings.HasSuffix(filename, TarBz2Ext) && len(filename) > len(TarBz2Ext):
		return Packages, nil
	case strings.HasSuffix(filename, CondaExt) && len(filename) > len(CondaExt):
		return PackagesConda, nil
	default:
		return "", status.ErrInvalidPackageName.WrapMessage(filename)
	}
}

func sectionNamed(field string) (Section, bool) {
	switch Section(field) {
	case Packages, PackagesConda:
		return Section(field), true
	default:
		return "", false
	}
}

// Checksums is a set of sha256 digests of packages to remove
type Checksums map[string]struct{}

// NewChecksums builds a set of checksums. Duplicates are ignored.
func NewChecksums(sums ...string) Checksums {
	c := make(Checksums, len(sums))
	for _, sum := range sums {
		c[sum] = struct{}{}
	}
	return c
}

// Has the checksum?
func (c Checksums) Has(sum string) bool {
	_, ok := c[sum]
	return ok
}

// Len of the set
func (c Checksums) Len() int {
	return len(c)
}
