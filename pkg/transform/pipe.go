// Copyright © 2018 One Concern

package transform

import (
	"bufio"
	"io"
)

// pipe is a synchronous in-memory pipe with a bounded buffer on the writer side:
// writes return as long as the buffer has room, then block until the reader
// drains the pipe.
type pipe struct {
	r  *io.PipeReader
	w  *io.PipeWriter
	bw *bufio.Writer
}

func newPipe(size int) *pipe {
	r, w := io.Pipe()
	return &pipe{r: r, w: w, bw: bufio.NewWriterSize(w, size)}
}

// writer side, for the single goroutine producing into the pipe
func (p *pipe) Write(b []byte) (int, error) {
	return p.bw.Write(b)
}

// closeWrite terminates the writer side. With a nil error, buffered data is
// flushed and the reader sees io.EOF once drained.
func (p *pipe) closeWrite(err error) {
	if err == nil {
		if err = p.bw.Flush(); err != nil {
			_ = p.w.CloseWithError(err)
			return
		}
	}
	_ = p.w.CloseWithError(err)
}

// closeRead terminates the reader side: subsequent writes fail with err
func (p *pipe) closeRead(err error) {
	_ = p.r.CloseWithError(err)
}

// abort breaks both ends. It is safe to call from any goroutine.
func (p *pipe) abort(err error) {
	_ = p.w.CloseWithError(err)
	_ = p.r.CloseWithError(err)
}
