package download

import (
	"io"
	"sync/atomic"
)

// ProgressWriter wraps an io.Writer, counts bytes that reached it and
// remembers the first write error.
type ProgressWriter struct {
	wr      io.Writer
	written atomic.Int64
	err     error
	onWrite func(n int)
}

// NewProgressWriter creates a new ProgressWriter. onWrite may be nil.
func NewProgressWriter(wr io.Writer, onWrite func(n int)) *ProgressWriter {
	return &ProgressWriter{
		wr:      wr,
		onWrite: onWrite,
	}
}

// Write implements io.Writer
func (p *ProgressWriter) Write(buf []byte) (int, error) {
	n, err := p.wr.Write(buf)
	if n > 0 {
		p.written.Add(int64(n))
		if p.onWrite != nil {
			p.onWrite(n)
		}
	}
	if err != nil && p.err == nil {
		p.err = err
	}
	return n, err
}

// Written returns the number of bytes written so far
func (p *ProgressWriter) Written() int64 {
	return p.written.Load()
}

// Err returns the first error returned by the underlying writer.
func (p *ProgressWriter) Err() error {
	return p.err
}
