// Package snippet builds the sample request shown to subscribers and copies
// it to a clipboard.
package snippet

import (
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aymanbagabas/go-osc52/v2"
)

// DefaultDelay is how long Copied stays true after a copy.
const DefaultDelay = 2000 * time.Millisecond

// TryCommand returns the curl command for path on the API at apiURL.
func TryCommand(apiURL, path string) string {
	return "curl '" + strings.TrimSuffix(apiURL, "/") + path + "' --header 'Authorization: Bearer YOUR_KEY_HERE'"
}

type Clipboard interface {
	WriteText(text string) error
}

// Copier writes text to a Clipboard and raises a transient "copied" flag.
type Copier struct {
	Clipboard Clipboard
	Delay     time.Duration // zero means DefaultDelay

	Logf func(fmt string, args ...any)

	mu        sync.Mutex
	copied    bool
	gen       int
	afterFunc func(time.Duration, func()) // for tests
}

func (c *Copier) logf(fmt string, args ...any) {
	if c.Logf != nil {
		c.Logf(fmt, args...)
	}
}

// Copy writes text to the clipboard. Copied reports true afterwards for
// Delay whether or not the clipboard accepted the text; a failed write is
// only logged.
func (c *Copier) Copy(text string) {
	if err := c.Clipboard.WriteText(text); err != nil {
		c.logf("snippet: clipboard: %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.copied = true
	c.gen++
	gen := c.gen
	after := c.afterFunc
	if after == nil {
		after = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	after(c.delay(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.gen == gen {
			c.copied = false
		}
	})
}

func (c *Copier) Copied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copied
}

func (c *Copier) delay() time.Duration {
	if c.Delay <= 0 {
		return DefaultDelay
	}
	return c.Delay
}

// OSC52 is a Clipboard that asks the terminal on W to set the system
// clipboard.
type OSC52 struct {
	W    io.Writer
	Tmux bool // wrap the sequence for tmux passthrough
}

func (o OSC52) WriteText(text string) error {
	seq := osc52.New(text)
	if o.Tmux {
		seq = seq.Tmux()
	}
	_, err := seq.WriteTo(o.W)
	return err
}
