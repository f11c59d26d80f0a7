package retailsearchctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type capturedRequest struct {
	method string
	path   string
	body   map[string]any
}

func newCapturingServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.method = r.Method
		captured.path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &captured.body)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func TestRunGenerateCommand(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusOK, "SELECT name FROM apparels")

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-generate-url", srv.URL, "generate", "red", "sneakers"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if got.method != http.MethodPost || got.path != "/" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.body["search"] != "red sneakers" {
		t.Fatalf("body = %#v", got.body)
	}
	if stdout.String() != "SELECT name FROM apparels\n" {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunQueryCommandSendsRowLimit(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusOK, `{"columns":["name"],"rows":[["Hiker"]]}`)

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-execute-url", srv.URL, "-row-limit", "5", "query", "SELECT name FROM apparels"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.path != "/v1/query" || got.body["sql"] != "SELECT name FROM apparels" || got.body["row_limit"] != float64(5) {
		t.Fatalf("request = %s %#v", got.path, got.body)
	}
	if !bytes.Contains(stdout.Bytes(), []byte("\n  \"columns\"")) {
		t.Fatalf("expected indented JSON, got %q", stdout.String())
	}
}

func TestRunSayCommand(t *testing.T) {
	srv, got := newCapturingServer(t, http.StatusOK, `{"reply":"ok"}`)

	code := Run(context.Background(), []string{"-base-url", srv.URL, "say", "abc-1", "are", "they", "red?"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if got.method != http.MethodPost || got.path != "/v1/sessions/abc-1/turns" {
		t.Fatalf("request = %s %s", got.method, got.path)
	}
	if got.body["text"] != "are they red?" {
		t.Fatalf("body = %#v", got.body)
	}
}

func TestRunSessionCommands(t *testing.T) {
	cases := []struct {
		args   []string
		method string
		path   string
	}{
		{args: []string{"session-new"}, method: http.MethodPost, path: "/v1/sessions"},
		{args: []string{"session-get", "s1"}, method: http.MethodGet, path: "/v1/sessions/s1"},
		{args: []string{"archive", "s1"}, method: http.MethodPost, path: "/v1/sessions/s1/archive"},
		{args: []string{"transcripts", "s1"}, method: http.MethodGet, path: "/v1/sessions/s1/transcripts"},
		{args: []string{"health"}, method: http.MethodGet, path: "/v1/health"},
	}
	for _, tc := range cases {
		srv, got := newCapturingServer(t, http.StatusOK, `{}`)
		code := Run(context.Background(), append([]string{"-base-url", srv.URL}, tc.args...), Options{})
		if code != 0 {
			t.Fatalf("%v: exit code = %d", tc.args, code)
		}
		if got.method != tc.method || got.path != tc.path {
			t.Fatalf("%v: request = %s %s", tc.args, got.method, got.path)
		}
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusNotFound, `{"error_code":"SESSION_NOT_FOUND"}`)

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "session-get", "missing"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
}

func TestRunRejectsBadArguments(t *testing.T) {
	for _, args := range [][]string{{"unknown"}, {"generate"}, {"say", "only-id"}, {"archive"}, {}} {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("%v: exit code = %d", args, code)
		}
		if stderr.Len() == 0 {
			t.Fatalf("%v: expected usage output", args)
		}
	}
}
