// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package linerange reads the lines of a byte range of a file. A line
// belongs to the range in which it starts: reading adjacent ranges
// [a, b) and [b, c) yields every line of [a, c) exactly once.
package linerange

import (
	"bufio"
	"io"

	"github.com/grailbio/base/errors"
)

// Reader is an io.Reader over the complete lines that start within a
// byte range.
type Reader struct {
	r        *bufio.Reader
	pos, end int64
	begin    int64
	buf      []byte
	err      error
}

// NewReader returns a reader of the lines of rs that start in the
// byte range [start, end). If start is nonzero, the (partial) line
// that straddles start belongs to the previous range and is skipped.
// The last line is read in full even when it extends past end.
// Bufsize is the size of the underlying read buffer.
func NewReader(rs io.ReadSeeker, start, end int64, bufsize int) (*Reader, error) {
	if start < 0 || end < start {
		return nil, errors.E(errors.Invalid, "linerange: invalid range")
	}
	lr := &Reader{pos: start, end: end}
	if start == 0 {
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		lr.r = bufio.NewReaderSize(rs, bufsize)
		return lr, nil
	}
	// Start reading one byte early: if that byte is a newline, a line
	// begins exactly at start.
	if _, err := rs.Seek(start-1, io.SeekStart); err != nil {
		return nil, err
	}
	lr.r = bufio.NewReaderSize(rs, bufsize)
	lr.pos = start - 1
	skipped, err := lr.r.ReadSlice('\n')
	for err == bufio.ErrBufferFull {
		lr.pos += int64(len(skipped))
		skipped, err = lr.r.ReadSlice('\n')
	}
	lr.pos += int64(len(skipped))
	switch err {
	case nil:
	case io.EOF:
		lr.err = io.EOF
	default:
		return nil, err
	}
	lr.begin = lr.pos
	return lr, nil
}

// Pos returns the file offset of the next unread line.
func (r *Reader) Pos() int64 {
	return r.pos - int64(len(r.buf))
}

// BytesRead returns the number of bytes of the lines consumed so far,
// including discarded lines.
func (r *Reader) BytesRead() int64 {
	return r.Pos() - r.begin
}

// Discard discards the next n lines of the range. It is not an error
// to discard past the end of the range.
func (r *Reader) Discard(n int) error {
	for i := 0; i < n; i++ {
		if err := r.fill(); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		r.buf = nil
	}
	return nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := r.fill(); err != nil {
		return 0, err
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// fill makes sure that r.buf is nonempty, reading the next line of
// the range if necessary.
func (r *Reader) fill() error {
	for len(r.buf) == 0 {
		if r.err != nil {
			return r.err
		}
		if r.pos >= r.end {
			r.err = io.EOF
			return r.err
		}
		line, err := r.r.ReadBytes('\n')
		r.pos += int64(len(line))
		r.buf = line
		if err != nil {
			r.err = err
		}
	}
	return nil
}
