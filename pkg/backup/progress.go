package backup

import "io"

// NewProgressWriter returns new progress writer.
func NewProgressWriter(out io.Writer) *ProgressWriter {
	return &ProgressWriter{w: out}
}

// ProgressWriter wraps a writer and counts the number of bytes written to
// it, so the run summary can report how much output an engine produced.
type ProgressWriter struct {
	w     io.Writer
	total uint64
}

// Write implements io.Writer interface.
func (pw *ProgressWriter) Write(buf []byte) (int, error) {
	n, err := pw.w.Write(buf)
	pw.total += uint64(n)
	return n, err
}

// Total returns the number of bytes written so far.
func (pw *ProgressWriter) Total() uint64 {
	return pw.total
}
