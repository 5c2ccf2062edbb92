// Package fetch issues JSON-over-HTTP requests and decodes their responses
// into the type the caller asks for.
package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"apidash.run/envknobs"
	"golang.org/x/exp/maps"
)

// Bearer is an option that sets the Authorization header to "Bearer <token>".
type Bearer string

// A StatusError reports a response with a non-2xx status code. Body holds
// the response body verbatim.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("fetch: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("fetch: unexpected status %d: %s", e.Status, e.Body)
}

// Do sends a request and decodes the response into R regardless of its status
// code. A nil body sends no body; an io.Reader or string is sent as is; any
// other value is encoded as JSON.
//
// Options may be an http.Header, merged into the request headers, or a
// Bearer token.
func Do[R any](ctx context.Context, c *http.Client, method, urlStr string, body any, opts ...any) (R, error) {
	var zero R

	var isJSON bool
	var p io.Reader
	switch v := body.(type) {
	case nil:
	case io.Reader:
		p = v
	case string:
		p = strings.NewReader(v)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return zero, err
		}
		p = bytes.NewReader(data)
		isJSON = true
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, p)
	if err != nil {
		return zero, err
	}

	if isJSON {
		// Set this header now so that below the client's desired
		// content-type (if any) can clobber the default.
		req.Header.Set("Content-Type", "application/json")
	}

	for _, opt := range opts {
		switch v := opt.(type) {
		case http.Header:
			maps.Copy(req.Header, v)
		case Bearer:
			req.Header.Set("Authorization", "Bearer "+string(v))
		}
	}

	if c == nil {
		c = http.DefaultClient
	}
	res, err := c.Do(req)
	if err != nil {
		return zero, err
	}

	if envknobs.FetchDebug() {
		res.Body = struct {
			io.Reader
			io.Closer
		}{
			Reader: io.TeeReader(res.Body, os.Stderr),
			Closer: res.Body,
		}
	}

	return interpretDesiredResponse[R](res)
}

// OK is like Do but reports a *StatusError, carrying the response body, for
// any response outside the 2xx range.
func OK[R any](ctx context.Context, c *http.Client, method, urlStr string, body any, opts ...any) (R, error) {
	var zero R
	res, err := Do[*http.Response](ctx, c, method, urlStr, body, opts...)
	if err != nil {
		return zero, err
	}

	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return interpretDesiredResponse[R](res)
	}

	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return zero, err
	}
	return zero, &StatusError{Status: res.StatusCode, Body: string(data)}
}

func interpretDesiredResponse[R any](res *http.Response) (R, error) {
	t := func(v any) R {
		return v.(R)
	}

	var zero R

	switch any(zero).(type) {
	case *http.Response:
		// caller is responsible for closing
		return t(res), nil
	case *bytes.Buffer:
		defer res.Body.Close()
		b := new(bytes.Buffer)
		_, err := b.ReadFrom(res.Body)
		return t(b), err
	case struct{}:
		res.Body.Close()
		return zero, nil
	case string:
		defer res.Body.Close()
		var b strings.Builder
		_, err := io.Copy(&b, res.Body)
		return t(b.String()), err
	case []byte:
		defer res.Body.Close()
		data, err := io.ReadAll(res.Body)
		return t(data), err // mimic same behavior as io.ReadAll
	default:
		var j R
		defer res.Body.Close()
		if err := json.NewDecoder(res.Body).Decode(&j); err != nil {
			return zero, err
		}
		return j, nil
	}
}
