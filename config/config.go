// Package config loads the dashboard's configuration once at startup. A
// missing required value is a deployment defect: Load reports it and callers
// are expected to exit.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"apidash.run/envknobs"
	"github.com/caarlos0/env/v10"
	"github.com/zalando/go-keyring"
	"tailscale.com/util/multierr"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	// APIURL is the gateway base URL, without a trailing slash.
	APIURL string `env:"API_URL,required"`

	Auth0 Auth0 `envPrefix:"AUTH0_"`

	Addr       string `env:"ADDR" envDefault:":3000"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`
	LogStyle   string `env:"LOG_STYLE" envDefault:"console"`
	SiteConfig string `env:"SITE_CONFIG"`
	SessionMax int    `env:"SESSION_MAX" envDefault:"1000"`

	// SessionSecret signs session cookies. When unset, SessionSecret
	// falls back to the OS keyring.
	SessionSecret string `env:"SESSION_SECRET"`

	// SiteURL is the public URL of the dashboard with a trailing slash.
	SiteURL string

	Site Site
}

type Auth0 struct {
	Domain       string `env:"DOMAIN,required"`
	ClientID     string `env:"CLIENT_ID,required"`
	ClientSecret string `env:"CLIENT_SECRET,required"`
	Audience     string `env:"AUDIENCE,required"`
}

// Load reads the configuration from the environment. It reports every
// missing or malformed value at once.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.SiteURL = envknobs.SiteURL()

	var errs []error
	for name, v := range map[string]string{
		"API_URL":  cfg.APIURL,
		"SITE_URL": cfg.SiteURL,
	} {
		if err := checkURL(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if cfg.SessionSecret != "" {
		if err := checkSecret([]byte(cfg.SessionSecret)); err != nil {
			errs = append(errs, fmt.Errorf("SESSION_SECRET: %w", err))
		}
	}
	if cfg.SessionMax <= 0 {
		errs = append(errs, fmt.Errorf("SESSION_MAX: must be positive, got %d", cfg.SessionMax))
	}

	cfg.Site = DefaultSite()
	if cfg.SiteConfig != "" {
		data, err := os.ReadFile(cfg.SiteConfig)
		if err != nil {
			errs = append(errs, fmt.Errorf("SITE_CONFIG: %w", err))
		} else if cfg.Site, err = ParseSite(data); err != nil {
			errs = append(errs, fmt.Errorf("SITE_CONFIG: %w", err))
		}
	}

	if err := multierr.New(errs...); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func checkURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%q is not an absolute URL", s)
	}
	return nil
}

// ErrNoSecret is reported when no session secret is configured.
var ErrNoSecret = errors.New("config: no session secret; set SESSION_SECRET or run `apidash secret`")

const keyringUser = "session"

// MinSecretLen is the shortest session secret accepted.
const MinSecretLen = 32

func checkSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return fmt.Errorf("session secret must be at least %d bytes", MinSecretLen)
	}
	return nil
}

// SessionSecret returns the secret used to sign session cookies: the
// SESSION_SECRET value if set, otherwise the one stored in the OS keyring.
// Either must be at least MinSecretLen bytes.
func SessionSecret(cfg *Config) ([]byte, error) {
	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		s, err := keyring.Get(envknobs.KeyringService(), keyringUser)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoSecret
		}
		if err != nil {
			return nil, fmt.Errorf("config: reading keyring: %w", err)
		}
		secret = []byte(s)
	}
	if err := checkSecret(secret); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return secret, nil
}

// StoreSessionSecret saves secret in the OS keyring for SessionSecret to find.
func StoreSessionSecret(secret []byte) error {
	if err := checkSecret(secret); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return keyring.Set(envknobs.KeyringService(), keyringUser, string(secret))
}
