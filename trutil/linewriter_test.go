package trutil

import (
	"fmt"
	"io"
	"testing"

	"kr.dev/diff"
)

func TestLineWriter(t *testing.T) {
	var writes []string
	lw := &LineWriter{
		Prefix: "http: ",
		Logf: func(format string, args ...any) {
			writes = append(writes, fmt.Sprintf(format, args...))
		},
	}

	chunks := []string{
		"hi", "there", "line", "things\n",
		"are\n",
		"nice\n",
		"yo", "helllkjalksjf             askjf", "\n",
		"", "", "", "\n",
		"boom", "done.\n",
		"many\nlines\none\nchunk\nno ",
		"newline at end of file",
	}

	for _, chunk := range chunks {
		io.WriteString(lw, chunk) // nolint: errcheck
	}

	want := []string{
		"http: hitherelinethings",
		"http: are",
		"http: nice",
		"http: yohelllkjalksjf             askjf",
		"http: ",
		"http: boomdone.",
		"http: many",
		"http: lines",
		"http: one",
		"http: chunk",
	}
	diff.Test(t, t.Errorf, writes, want)

	writes = nil
	want = []string{
		"http: no newline at end of file",
	}
	if err := lw.Flush(); err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, writes, want)

	writes = nil
	if err := lw.Flush(); err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, len(writes), 0)
}

func TestLineWriterAutoFlush(t *testing.T) {
	var writes []string
	lw := &LineWriter{
		AutoFlush: true,
		Logf: func(format string, args ...any) {
			writes = append(writes, fmt.Sprintf(format, args...))
		},
	}
	io.WriteString(lw, "TLS handshake error from 10.0.0.1:5555: EOF") // nolint: errcheck
	diff.Test(t, t.Errorf, writes, []string{"TLS handshake error from 10.0.0.1:5555: EOF"})
}
