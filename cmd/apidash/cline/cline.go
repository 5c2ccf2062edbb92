// Package cline runs the apidash binary built from the test executable and
// inspects its output.
package cline

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"golang.org/x/exp/slices"
)

const runMainEnv = "CLINE_TEST_RUN_MAIN"

// runTimeout bounds a single command.
const runTimeout = 3 * time.Second

var testBin string

// TestMain re-executes the test binary as the command under test. Call it
// from the command's TestMain with the command's main function.
func TestMain(m *testing.M, run func()) {
	if os.Getenv(runMainEnv) != "" {
		run()
		os.Exit(0)
	}
	os.Exit(runTests(m))
}

func runTests(m *testing.M) int {
	os.Setenv(runMainEnv, "true")

	exe, err := os.Executable()
	if err != nil {
		log.Fatal(err)
	}
	dir, err := os.MkdirTemp("", "apidash-test")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	testBin = filepath.Join(dir, "apidash")
	if err := os.Symlink(exe, testBin); err != nil {
		if err := copyFile(testBin, exe); err != nil {
			log.Fatal(err)
		}
	}
	return m.Run()
}

func copyFile(dst, src string) error {
	r, err := os.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o777)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Data holds the environment for, and output of, the last run command.
type Data struct {
	t      *testing.T
	stdin  io.Reader
	stdout bytes.Buffer
	stderr bytes.Buffer
	env    []string // nil means inherit
	dir    string
	ran    bool
}

func Test(t *testing.T) *Data {
	return &Data{t: t}
}

func (d *Data) Setenv(name, value string) {
	d.Unsetenv(name)
	d.env = append(d.env, name+"="+value)
}

func (d *Data) Unsetenv(name string) {
	if d.env == nil {
		d.env = slices.Clone(os.Environ())
	}
	i := slices.IndexFunc(d.env, func(e string) bool {
		return strings.HasPrefix(e, name+"=")
	})
	if i >= 0 {
		d.env = slices.Delete(d.env, i, i+1)
	}
}

// Chdir runs later commands in dir.
func (d *Data) Chdir(dir string) { d.dir = dir }

func (d *Data) SetStdin(r io.Reader) { d.stdin = r }

func (d *Data) Run(args ...string) {
	d.t.Helper()
	if err := d.run(args); err != nil {
		d.t.Fatal(err)
	}
}

func (d *Data) RunFail(args ...string) {
	d.t.Helper()
	err := d.run(args)
	if err == nil {
		d.t.Fatal("succeeded unexpectedly")
	}
	d.t.Log("failed as expected:", err)
}

func (d *Data) run(args []string) error {
	d.t.Helper()
	d.stdout.Reset()
	d.stderr.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, testBin, args...)
	cmd.Dir = d.dir
	cmd.Env = d.env
	cmd.Stdin = d.stdin
	cmd.Stdout = &d.stdout
	cmd.Stderr = &d.stderr
	err := cmd.Run()
	if d.stdout.Len() > 0 {
		d.t.Logf("standard output:\n%s", d.stdout.String())
	}
	if d.stderr.Len() > 0 {
		d.t.Logf("standard error:\n%s", d.stderr.String())
	}
	d.ran = true
	return err
}

// GrepStdout fails the test unless some line of standard output matches
// the regular expression match.
func (d *Data) GrepStdout(match, msg string) {
	d.t.Helper()
	d.grep(match, &d.stdout, "output", msg, true)
}

func (d *Data) GrepStderr(match, msg string) {
	d.t.Helper()
	d.grep(match, &d.stderr, "error", msg, true)
}

func (d *Data) GrepStdoutNot(match, msg string) {
	d.t.Helper()
	d.grep(match, &d.stdout, "output", msg, false)
}

func (d *Data) GrepStderrNot(match, msg string) {
	d.t.Helper()
	d.grep(match, &d.stderr, "error", msg, false)
}

func (d *Data) grep(match string, b *bytes.Buffer, name, msg string, want bool) {
	d.t.Helper()
	if !d.ran {
		d.t.Fatal("internal testsuite error: grep called before run")
	}
	if matchLine(regexp.MustCompile(match), b.Bytes()) == want {
		return
	}
	d.t.Log(msg)
	if want {
		d.t.Fatalf("pattern %q not found in standard %s", match, name)
	}
	d.t.Fatalf("pattern %q found in standard %s", match, name)
}

func matchLine(re *regexp.Regexp, b []byte) bool {
	for _, ln := range bytes.Split(b, []byte{'\n'}) {
		if re.Match(ln) {
			return true
		}
	}
	return false
}
