package main

import (
	"flag"
	"fmt"
	"os"

	"apidash.run/config"
	"apidash.run/snippet"
)

func try(args []string) error {
	fs := flag.NewFlagSet("try", flag.ContinueOnError)
	noCopy := fs.Bool("n", false, "print only; do not copy to the clipboard")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	site := config.DefaultSite()
	var apiURL string
	switch fs.NArg() {
	case 0:
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		apiURL, site = cfg.APIURL, cfg.Site
	case 1:
		apiURL = fs.Arg(0)
	default:
		return errUsage
	}

	cmd := snippet.TryCommand(apiURL, site.TryPath)
	fmt.Fprintln(stdout, cmd)
	if *noCopy {
		return nil
	}

	c := &snippet.Copier{
		Clipboard: snippet.OSC52{W: os.Stderr, Tmux: os.Getenv("TMUX") != ""},
	}
	if *flagVerbose {
		c.Logf = func(format string, args ...any) {
			fmt.Fprintf(stderr, format+"\n", args...)
		}
	}
	c.Copy(cmd)
	if c.Copied() {
		fmt.Fprintln(stderr, "Copied to clipboard.")
	}
	return nil
}
