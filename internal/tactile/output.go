package tactile

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// lineCapture collects stdout and stderr into one ordered list of lines.
// Bytes past max are discarded and counted.
type lineCapture struct {
	mu        sync.Mutex
	lines     []OutputLine
	partial   map[Stream]*bytes.Buffer
	max       int64
	written   int64
	truncated bool
	discarded int64
}

func newLineCapture(max int64) *lineCapture {
	return &lineCapture{
		max:     max,
		partial: make(map[Stream]*bytes.Buffer),
	}
}

// writer returns an io.Writer feeding stream s.
func (c *lineCapture) writer(s Stream) io.Writer {
	return &streamWriter{capture: c, stream: s}
}

type streamWriter struct {
	capture *lineCapture
	stream  Stream
}

func (w *streamWriter) Write(p []byte) (int, error) {
	return w.capture.write(w.stream, p)
}

func (c *lineCapture) write(s Stream, p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(p)
	if c.max > 0 && c.written+int64(n) > c.max {
		keep := c.max - c.written
		if keep < 0 {
			keep = 0
		}
		c.truncated = true
		c.discarded += int64(n) - keep
		p = p[:keep]
	}
	c.written += int64(len(p))

	buf, ok := c.partial[s]
	if !ok {
		buf = &bytes.Buffer{}
		c.partial[s] = buf
	}
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			buf.Write(p)
			break
		}
		buf.Write(p[:i+1])
		c.emit(s, buf)
		p = p[i+1:]
	}

	// Report the full length so the copier never sees a short write.
	return n, nil
}

func (c *lineCapture) emit(s Stream, buf *bytes.Buffer) {
	c.lines = append(c.lines, OutputLine{
		Stream: s,
		Text:   strings.ToValidUTF8(buf.String(), "\uFFFD"),
	})
	buf.Reset()
}

// finish flushes unterminated trailing output and returns every line.
func (c *lineCapture) finish() []OutputLine {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range []Stream{StreamStdout, StreamStderr} {
		if buf, ok := c.partial[s]; ok && buf.Len() > 0 {
			c.emit(s, buf)
		}
	}
	return c.lines
}
