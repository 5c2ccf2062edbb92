// Command apidash serves the customer dashboard for an API product.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"apidash.run/version"
)

var (
	flagVerbose = flag.Bool("v", false, "verbose output")
)

var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

//lint:ignore ST1005 this error is not used like normal errors
var errUsage = errors.New(`Usage:

	apidash [flags] <command> [arguments]

The commands are:

	serve      run the dashboard web server (default)
	secret     store the session cookie secret in the OS keyring
	try        print the sample API request and copy it to the clipboard
	version    display the current version
	help       display this help message

The flags are:

	-v         verbose output
	-h         show this message

Environment variables:

	API_URL                  gateway base URL (required)
	AUTH0_DOMAIN             identity provider domain (required)
	AUTH0_CLIENT_ID          OAuth client id (required)
	AUTH0_CLIENT_SECRET      OAuth client secret (required)
	AUTH0_AUDIENCE           API identifier access tokens are minted for (required)
	SITE_URL                 public URL of the dashboard
	SESSION_SECRET           cookie signing secret; see "apidash secret"
	ADDR                     listen address (default :3000)
	LOG_LEVEL, LOG_STYLE     logging level and "console" or "json"
	SITE_CONFIG              HuJSON file with the site name and links
`)

func main() {
	log.SetFlags(0)
	flag.Usage = func() {
		fmt.Fprintln(stderr, errUsage)
	}
	flag.Parse()

	cmd, args := "serve", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if err := apidash(cmd, args); err != nil {
		if errors.Is(err, errUsage) {
			log.Fatalf("%v", err)
		}
		log.Fatalf("apidash: %v", err)
	}
}

func apidash(cmd string, args []string) error {
	switch cmd {
	case "serve":
		return serve()
	case "secret":
		return secret()
	case "try":
		return try(args)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help":
		fmt.Fprintln(stdout, errUsage)
		return nil
	default:
		return errUsage
	}
}
