package trweb

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"kr.dev/diff"
)

func TestDecode(t *testing.T) {
	t.Run("bad syntax", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader("boom"))
		var v json.RawMessage
		got := DecodeStrict(r, &v)
		want := &HTTPError{
			Status:  400,
			Code:    "invalid_request",
			Message: "invalid json syntax",
		}
		diff.Test(t, t.Errorf, got, want)
	})

	t.Run("strict unknown field", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"a": {"notAField": 1}}`))
		var v struct {
			A struct{}
		}
		got := DecodeStrict(r, &v)
		want := &HTTPError{
			Status:  400,
			Code:    "invalid_request",
			Message: `unknown field "notAField"`,
		}
		diff.Test(t, t.Errorf, got, want)
	})

	t.Run("unmarshal error", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/", strings.NewReader(`{"a": {"notAField": 1}}`))
		var v struct {
			A int
		}
		got := DecodeStrict(r, &v)
		var he *HTTPError
		if errors.As(got, &he) {
			t.Errorf("unexpected HTTPError: %v", got)
		}
	})
}

func TestDecodeHuJSON(t *testing.T) {
	body := `{
		// the label shown next to the key
		"description": "ci",
	}`
	r := httptest.NewRequest("POST", "/keys", strings.NewReader(body))
	var v struct{ Description string }
	if err := DecodeStrict(r, &v); err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, v.Description, "ci")
}

func TestFormValue(t *testing.T) {
	r := httptest.NewRequest("POST", "/checkout", strings.NewReader("priceId=price_1&blank=+"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	got, err := FormValue(r, "priceId")
	if err != nil {
		t.Fatal(err)
	}
	diff.Test(t, t.Errorf, got, "price_1")

	_, err = FormValue(r, "blank")
	diff.Test(t, t.Errorf, err, error(&HTTPError{Status: 400, Code: "invalid_request", Message: `missing "blank"`}))
}

func TestMethod(t *testing.T) {
	r := httptest.NewRequest("GET", "/checkout", nil)
	diff.Test(t, t.Errorf, Method(r, "POST"), error(MethodNotAllowed))
	diff.Test(t, t.Errorf, Method(r, "GET", "HEAD"), nil)
}

func TestInvalid(t *testing.T) {
	err := Invalid(`missing "name"`)
	diff.Test(t, t.Errorf, err, error(&HTTPError{Status: 400, Code: "invalid_request", Message: `missing "name"`}))
	diff.Test(t, t.Errorf, InvalidRequest.Message, "Invalid Request")
}
