package retailsearchctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	// BaseURL is the agent API.
	BaseURL     string
	GenerateURL string
	ExecuteURL  string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Stdout      io.Writer
	Stderr      io.Writer
}

type request struct {
	method string
	url    string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("retailsearchctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "agent API base URL")
	generateURL := fs.String("generate-url", firstNonEmpty(defaults.GenerateURL, "http://localhost:8081"), "generation peer base URL")
	executeURL := fs.String("execute-url", firstNonEmpty(defaults.ExecuteURL, "http://localhost:8082"), "execution peer base URL")
	userID := fs.String("user-id", "", "user id for session-new")
	rowLimit := fs.Int("row-limit", 0, "row limit for query (0 keeps the server limit)")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	req, err := buildRequest(command, rest, endpoints{
		agent:    strings.TrimRight(*baseURL, "/"),
		generate: strings.TrimRight(*generateURL, "/"),
		execute:  strings.TrimRight(*executeURL, "/"),
	}, *userID, *rowLimit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	code, responseBody, err := doRequest(ctx, client, req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

type endpoints struct {
	agent    string
	generate string
	execute  string
}

func buildRequest(command string, args []string, urls endpoints, userID string, rowLimit int) (request, error) {
	text := strings.TrimSpace(strings.Join(args, " "))
	switch command {
	case "health":
		return request{method: http.MethodGet, url: urls.agent + "/v1/health"}, nil
	case "ready":
		return request{method: http.MethodGet, url: urls.agent + "/v1/ready"}, nil
	case "generate":
		if text == "" {
			return request{}, fmt.Errorf("generate needs search text")
		}
		return request{method: http.MethodPost, url: urls.generate + "/", body: map[string]string{"search": text}}, nil
	case "execute":
		if text == "" {
			return request{}, fmt.Errorf("execute needs a SQL statement")
		}
		return request{method: http.MethodPost, url: urls.execute + "/", body: map[string]string{"search": text}}, nil
	case "query":
		if text == "" {
			return request{}, fmt.Errorf("query needs a SQL statement")
		}
		return request{method: http.MethodPost, url: urls.execute + "/v1/query", body: map[string]any{"sql": text, "row_limit": rowLimit}}, nil
	case "session-new":
		body := map[string]string{}
		if strings.TrimSpace(userID) != "" {
			body["user_id"] = strings.TrimSpace(userID)
		}
		return request{method: http.MethodPost, url: urls.agent + "/v1/sessions", body: body}, nil
	case "session-get", "archive", "transcripts":
		if len(args) != 1 {
			return request{}, fmt.Errorf("%s needs exactly one session id", command)
		}
		path := urls.agent + "/v1/sessions/" + url.PathEscape(args[0])
		switch command {
		case "archive":
			return request{method: http.MethodPost, url: path + "/archive"}, nil
		case "transcripts":
			return request{method: http.MethodGet, url: path + "/transcripts"}, nil
		}
		return request{method: http.MethodGet, url: path}, nil
	case "say":
		if len(args) < 2 {
			return request{}, fmt.Errorf("say needs a session id and text")
		}
		return request{
			method: http.MethodPost,
			url:    urls.agent + "/v1/sessions/" + url.PathEscape(args[0]) + "/turns",
			body:   map[string]string{"text": strings.Join(args[1:], " ")},
		}, nil
	default:
		return request{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, r request) (int, []byte, error) {
	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: retailsearchctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                    GET /v1/health on the agent API")
	_, _ = fmt.Fprintln(w, "  ready                     GET /v1/ready on the agent API")
	_, _ = fmt.Fprintln(w, "  generate <text>           POST / on the generation peer")
	_, _ = fmt.Fprintln(w, "  execute <sql>             POST / on the execution peer")
	_, _ = fmt.Fprintln(w, "  query <sql>               POST /v1/query on the execution peer")
	_, _ = fmt.Fprintln(w, "  session-new               POST /v1/sessions")
	_, _ = fmt.Fprintln(w, "  session-get <id>          GET /v1/sessions/{id}")
	_, _ = fmt.Fprintln(w, "  say <id> <text>           POST /v1/sessions/{id}/turns")
	_, _ = fmt.Fprintln(w, "  archive <id>              POST /v1/sessions/{id}/archive")
	_, _ = fmt.Fprintln(w, "  transcripts <id>          GET /v1/sessions/{id}/transcripts")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
