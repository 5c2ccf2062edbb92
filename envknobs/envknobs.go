// Package envknobs holds optional environment knobs and their defaults.
// Required configuration lives in package config.
package envknobs

import (
	"os"
	"strconv"
	"strings"
)

func FetchDebug() bool {
	v, _ := strconv.ParseBool(os.Getenv("FETCH_DEBUG"))
	return v
}

func KeyringService() string { return env("APIDASH_KEYRING_SERVICE", "apidash.session.secret") }

// SiteURL reports the public URL of the dashboard, used as the return target
// for checkout and billing portal sessions. It prefers SITE_URL, then
// VERCEL_URL, then http://localhost:3000/. The result always carries a scheme
// (https:// is added when missing) and a trailing slash.
func SiteURL() string {
	u := env("SITE_URL", env("VERCEL_URL", "http://localhost:3000/"))
	if !strings.Contains(u, "http") {
		u = "https://" + u
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}

func env(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
