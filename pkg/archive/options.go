// Copyright © 2018 One Concern

package archive

import (
	"github.com/spf13/afero"
)

type options struct {
	fs  afero.Fs
	dir string
}

// Option tunes the reading of archives
type Option func(*options)

// SpoolTo sets where .conda archives read from a stream are spooled, since zip needs random access.
// The default is the temporary directory of the OS.
func SpoolTo(fs afero.Fs, dir string) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
		o.dir = dir
	}
}

func defaultOptions(opts []Option) options {
	o := options{fs: afero.NewOsFs()}
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
