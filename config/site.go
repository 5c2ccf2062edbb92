package config

import (
	"encoding/json"

	"github.com/tailscale/hujson"
)

// Site holds presentation settings: the product name, outbound links and the
// gateway paths advertised on the dashboard. It is read from a HuJSON file,
// so comments and trailing commas are allowed.
type Site struct {
	Name  string `json:"name"`
	Links struct {
		GitHub  string `json:"github"`
		Twitter string `json:"twitter"`
	} `json:"links"`

	// TryPath is the sample endpoint shown in the "Try the API" card.
	TryPath       string `json:"tryPath"`
	DocsPath      string `json:"docsPath"`
	AnalyticsPath string `json:"analyticsPath"`
}

func DefaultSite() Site {
	var s Site
	s.Name = "API Dashboard"
	s.TryPath = "/v1/todos"
	s.DocsPath = "/docs"
	s.AnalyticsPath = "/docs/routes/~dashboard"
	return s
}

// ParseSite decodes a HuJSON site file. Fields absent from data keep their
// DefaultSite values.
func ParseSite(data []byte) (Site, error) {
	data, err := hujson.Standardize(data)
	if err != nil {
		return Site{}, err
	}
	s := DefaultSite()
	if err := json.Unmarshal(data, &s); err != nil {
		return Site{}, err
	}
	return s, nil
}
