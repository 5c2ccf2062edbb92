package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
	"kr.dev/diff"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("API_URL", "https://gateway.example.com/")
	t.Setenv("AUTH0_DOMAIN", "tenant.auth0.example")
	t.Setenv("AUTH0_CLIENT_ID", "client")
	t.Setenv("AUTH0_CLIENT_SECRET", "secret")
	t.Setenv("AUTH0_AUDIENCE", "https://api.example")
	t.Setenv("SITE_URL", "")
	t.Setenv("VERCEL_URL", "")
	t.Setenv("SITE_CONFIG", "")
	t.Setenv("SESSION_SECRET", "")
}

func TestLoad(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, cfg.APIURL, "https://gateway.example.com")
	diff.Test(t, t.Errorf, cfg.Auth0, Auth0{
		Domain:       "tenant.auth0.example",
		ClientID:     "client",
		ClientSecret: "secret",
		Audience:     "https://api.example",
	})
	diff.Test(t, t.Errorf, cfg.Addr, ":3000")
	diff.Test(t, t.Errorf, cfg.SiteURL, "http://localhost:3000/")
	diff.Test(t, t.Errorf, cfg.Site, DefaultSite())
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("API_URL", "")
	t.Setenv("AUTH0_AUDIENCE", "")
	os.Unsetenv("API_URL")
	os.Unsetenv("AUTH0_AUDIENCE")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, name := range []string{"API_URL", "AUTH0_AUDIENCE"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not name %s", err, name)
		}
	}
}

func TestLoadBadURL(t *testing.T) {
	setRequired(t)
	t.Setenv("API_URL", "gateway")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "API_URL") {
		t.Fatalf("err = %v; want API_URL error", err)
	}
}

func TestLoadSiteFile(t *testing.T) {
	setRequired(t)
	name := filepath.Join(t.TempDir(), "site.hujson")
	data := `{
		// shown in the header
		"name": "Todo API",
		"links": {"github": "https://github.com/example/todo",},
	}`
	if err := os.WriteFile(name, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITE_CONFIG", name)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	want := DefaultSite()
	want.Name = "Todo API"
	want.Links.GitHub = "https://github.com/example/todo"
	diff.Test(t, t.Errorf, cfg.Site, want)
}

func TestSessionSecret(t *testing.T) {
	keyring.MockInit()

	cfg := &Config{}
	if _, err := SessionSecret(cfg); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("err = %v; want ErrNoSecret", err)
	}

	if err := StoreSessionSecret([]byte("short")); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
	secret := []byte(strings.Repeat("k", 32))
	if err := StoreSessionSecret(secret); err != nil {
		t.Fatal(err)
	}
	got, err := SessionSecret(cfg)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, secret)

	fromEnv := strings.Repeat("e", MinSecretLen)
	cfg.SessionSecret = fromEnv
	got, err = SessionSecret(cfg)
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, string(got), fromEnv)

	cfg.SessionSecret = "from-env"
	if _, err := SessionSecret(cfg); err == nil {
		t.Error("short SESSION_SECRET accepted")
	}
}

func TestLoadShortSessionSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("SESSION_SECRET", "hunter2")
	_, err := Load()
	if err == nil {
		t.Fatal("short SESSION_SECRET accepted")
	}
	if !strings.Contains(err.Error(), "SESSION_SECRET") {
		t.Errorf("err = %v; want it to name SESSION_SECRET", err)
	}

	t.Setenv("SESSION_SECRET", strings.Repeat("s", MinSecretLen))
	if _, err := Load(); err != nil {
		t.Fatal(err)
	}
}
