package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"apidash.run/config"
	"golang.org/x/term"
)

func secret() error {
	fmt.Fprint(stdout, `The dashboard signs its session cookies with a secret of at least 32
bytes. Generate one with, for example:

	openssl rand -base64 48

Session secret: `)

	defer fmt.Fprintln(stdout)

	key, err := readSecret()
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, strings.Repeat("*", 40))

	if err := config.StoreSessionSecret(key); err != nil {
		return err
	}

	fmt.Fprint(stdout, `

Success.

The secret is stored in the OS keyring; "apidash serve" uses it whenever
SESSION_SECRET is not set.
`)
	return nil
}

// readSecret reads without echo from a terminal, or a single line from
// anything else.
func readSecret() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		return term.ReadPassword(fd)
	}
	line, err := bufio.NewReader(os.Stdin).ReadBytes('\n')
	if len(line) > 0 {
		err = nil
	}
	return bytes.TrimSpace(line), err
}
