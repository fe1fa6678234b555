package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/billbuster/billpoints/internal/point"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient("test-key", "test-model", 5*time.Second, 0)
	c.endpoint = srv.URL
	return c
}

func modelResponse(text string) string {
	return `{"content":[{"type":"text","text":` + jsonString(text) + `}]}`
}

func jsonString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\\':
			out += `\\`
		case '\n':
			out += `\n`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func TestCheckCredentials(t *testing.T) {
	var cfgErr *point.ConfigError

	c := NewClient("", "model", 0, 0)
	if err := c.CheckCredentials(); !errors.As(err, &cfgErr) {
		t.Errorf("missing key: expected ConfigError, got %v", err)
	}

	c = NewClient("key", "", 0, 0)
	if err := c.CheckCredentials(); !errors.As(err, &cfgErr) {
		t.Errorf("missing model: expected ConfigError, got %v", err)
	}

	c = NewClient("key", "model", 0, 0)
	if err := c.CheckCredentials(); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
}

func TestExtractPoints(t *testing.T) {
	body := `[{"point_type":"funding","description":"appropriates $5M","entities":["DOT"],"reference":"Sec. 2","confidence":"medium"}]`
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		w.Write([]byte(modelResponse(body)))
	})

	raws, err := c.ExtractPoints(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("ExtractPoints failed: %v", err)
	}
	if len(raws) != 1 || raws[0].PointType != "funding" || raws[0].Description != "appropriates $5M" {
		t.Errorf("unexpected raws: %+v", raws)
	}
}

func TestExtractPointsStripsCodeFences(t *testing.T) {
	body := "```json\n[{\"point_type\":\"other\",\"description\":\"a minor note\",\"confidence\":\"low\"}]\n```"
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse(body)))
	})

	raws, err := c.ExtractPoints(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("ExtractPoints failed: %v", err)
	}
	if len(raws) != 1 || raws[0].PointType != "other" {
		t.Errorf("unexpected raws: %+v", raws)
	}
}

func TestExtractPointsMalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse("Here are the points I found:\n- funding increase")))
	})

	_, err := c.ExtractPoints(context.Background(), "prompt")
	var parseErr *point.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("parse errors must not be retryable")
	}
}

func TestExtractPointsServiceErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})

		_, err := c.ExtractPoints(context.Background(), "prompt")
		var svcErr *point.ServiceError
		if !errors.As(err, &svcErr) {
			t.Fatalf("status %d: expected ServiceError, got %v", status, err)
		}
		if svcErr.StatusCode != status {
			t.Errorf("status = %d, want %d", svcErr.StatusCode, status)
		}
		if !IsRetryable(err) {
			t.Errorf("status %d should be retryable", status)
		}
	}
}

func TestExtractPointsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := NewClient("test-key", "test-model", time.Second, 0)
	c.endpoint = srv.URL
	srv.Close()

	_, err := c.ExtractPoints(context.Background(), "prompt")
	if !IsRetryable(err) {
		t.Errorf("network error should be retryable, got %v", err)
	}
}

func TestExtractPointsEmptyContent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	})

	_, err := c.ExtractPoints(context.Background(), "prompt")
	var parseErr *point.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
}

func TestStripCodeBlock(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```json\n[]\n```", "[]"},
		{"```\n[]\n```", "[]"},
		{"  []  ", "[]"},
		{"[]", "[]"},
	}
	for _, tc := range cases {
		if got := stripCodeBlock(tc.in); got != tc.want {
			t.Errorf("stripCodeBlock(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestStatsRecorded(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse(`[]`)))
	})

	for i := 0; i < 3; i++ {
		if _, err := c.ExtractPoints(context.Background(), "prompt"); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	snap := c.Stats.Snapshot()
	if snap.Count != 3 {
		t.Errorf("count = %d, want 3", snap.Count)
	}
	if snap.Failures != 0 {
		t.Errorf("failures = %d, want 0", snap.Failures)
	}
}
