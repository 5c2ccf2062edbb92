// Package trutil adapts line-oriented writers to Logf-style loggers.
package trutil

import (
	"bytes"
	"strings"
)

// LineWriter is an io.Writer that calls Logf once per complete line. The
// trailing newline is dropped, since loggers add their own. It lets
// writer-based loggers such as http.Server.ErrorLog feed a structured
// logger.
type LineWriter struct {
	Prefix    string
	Logf      func(string, ...any)
	AutoFlush bool // flush after every write if true

	lineBuf strings.Builder
}

// Flush logs any buffered partial line.
func (lw *LineWriter) Flush() error {
	if lw.lineBuf.Len() == 0 {
		return nil
	}
	lw.Logf("%s%s", lw.Prefix, lw.lineBuf.String())
	lw.lineBuf.Reset()
	return nil
}

var newline = []byte{'\n'}

func (lw *LineWriter) Write(p []byte) (n int, err error) {
	if lw.AutoFlush {
		defer lw.Flush()
	}
	p0 := p
	for {
		before, after, hasNewline := bytes.Cut(p, newline)
		lw.lineBuf.Write(before)
		if !hasNewline {
			return len(p0), nil
		}
		if lw.lineBuf.Len() == 0 {
			// keep blank lines visible
			lw.Logf("%s", lw.Prefix)
		} else if err := lw.Flush(); err != nil {
			return 0, err
		}
		p = after
	}
}
