package tabchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	TenantID   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
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

	fs := flag.NewFlagSet("tabchatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "TabChat API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	tenantID := fs.String("tenant-id", defaults.TenantID, "Tenant ID header (used when auth is disabled)")
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
	method := ""
	path := ""
	contentType := ""
	var body io.Reader
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "models":
		method, path = http.MethodGet, "/v1/models"
	case "schema":
		method, path = http.MethodGet, "/v1/datasets/current/schema"
	case "sessions":
		method, path = http.MethodGet, "/v1/datasets/sessions"
	case "upload":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "upload requires a file argument")
			return 2
		}
		filePath := fs.Arg(1)
		data, err := os.ReadFile(filePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "cannot read %s: %v\n", filePath, err)
			return 1
		}
		method = http.MethodPost
		path = "/v1/datasets?filename=" + url.QueryEscape(filepath.Base(filePath))
		contentType = "application/octet-stream"
		body = bytes.NewReader(data)
	case "query":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "query requires a SQL argument")
			return 2
		}
		method, path = http.MethodPost, "/v1/query"
		contentType = "application/json"
		body = jsonBody(map[string]string{"query": fs.Arg(1)})
	case "ask":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "ask requires a question argument")
			return 2
		}
		method, path = http.MethodPost, "/v1/query/translate"
		contentType = "application/json"
		body = jsonBody(map[string]string{"question": fs.Arg(1)})
	case "chat":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "chat requires a message argument")
			return 2
		}
		method, path = http.MethodPost, "/v1/chat"
		contentType = "application/json"
		body = jsonBody(map[string]string{"message": fs.Arg(1)})
	case "mode":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "mode requires a mode argument")
			return 2
		}
		method, path = http.MethodPut, "/v1/chat/mode"
		contentType = "application/json"
		body = jsonBody(map[string]string{"mode": fs.Arg(1)})
	case "close":
		method, path = http.MethodDelete, "/v1/datasets/current"
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, client, method, endpoint, contentType, body, *apiKey, *tenantID)
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

func jsonBody(payload any) io.Reader {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return strings.NewReader("{}")
	}
	return bytes.NewReader(encoded)
}

func doRequest(ctx context.Context, client *http.Client, method, url, contentType string, body io.Reader, apiKey, tenantID string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(tenantID) != "" {
		req.Header.Set("X-Tenant-ID", strings.TrimSpace(tenantID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
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
	_, _ = fmt.Fprintln(w, "usage: tabchatctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health            GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready             GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  models            GET /v1/models")
	_, _ = fmt.Fprintln(w, "  schema            GET /v1/datasets/current/schema")
	_, _ = fmt.Fprintln(w, "  sessions          GET /v1/datasets/sessions")
	_, _ = fmt.Fprintln(w, "  upload <file>     POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  query <sql>       POST /v1/query")
	_, _ = fmt.Fprintln(w, "  ask <question>    POST /v1/query/translate")
	_, _ = fmt.Fprintln(w, "  chat <message>    POST /v1/chat")
	_, _ = fmt.Fprintln(w, "  mode <mode>       PUT /v1/chat/mode")
	_, _ = fmt.Fprintln(w, "  close             DELETE /v1/datasets/current")
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
