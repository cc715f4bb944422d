// Package testutil provides a configurable mock action-API server for tests.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest captures what the server saw for one request.
type RecordedRequest struct {
	Action    string
	Method    string
	Query     url.Values
	Form      url.Values
	Multipart bool

	// ChunkSize is the byte length of the "chunk" or "file" part, zero for
	// non-multipart requests.
	ChunkSize int
}

// MockWiki is a scriptable action-API server. Responses are queued per
// action and served in order; the last queued response repeats once the
// queue drains.
type MockWiki struct {
	server *httptest.Server

	mu       sync.Mutex
	scripts  map[string][]MockResponse
	requests []RecordedRequest
}

// NewMockWiki creates a mock server.
func NewMockWiki() *MockWiki {
	m := &MockWiki{scripts: make(map[string][]MockResponse)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the server endpoint.
func (m *MockWiki) URL() string { return m.server.URL }

// Close shuts down the server.
func (m *MockWiki) Close() { m.server.Close() }

// Script queues responses for an action.
func (m *MockWiki) Script(action string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[action] = append(m.scripts[action], responses...)
}

// Requests returns a copy of everything recorded so far.
func (m *MockWiki) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests served.
func (m *MockWiki) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// CountFor returns the number of requests served for one action.
func (m *MockWiki) CountFor(action string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.Action == action {
			n++
		}
	}
	return n
}

func (m *MockWiki) handle(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")

	rec := RecordedRequest{
		Action: action,
		Method: r.Method,
		Query:  r.URL.Query(),
	}
	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		rec.Multipart = true
		if err := r.ParseMultipartForm(64 << 20); err == nil {
			rec.Form = url.Values(r.MultipartForm.Value)
			for _, field := range []string{"chunk", "file"} {
				if fhs := r.MultipartForm.File[field]; len(fhs) > 0 {
					rec.ChunkSize = int(fhs[0].Size)
				}
			}
		}
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err == nil {
			rec.Form = r.PostForm
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	queue := m.scripts[action]
	var resp MockResponse
	switch {
	case len(queue) == 0:
		resp = MockResponse{StatusCode: http.StatusOK, Body: `<api/>`}
	case len(queue) == 1:
		resp = queue[0]
	default:
		resp = queue[0]
		m.scripts[action] = queue[1:]
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if resp.StatusCode == 0 {
		resp.StatusCode = http.StatusOK
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		fmt.Fprint(w, resp.Body)
	}
}

// OK wraps body in an <api> envelope.
func OK(inner string) MockResponse {
	return MockResponse{StatusCode: http.StatusOK, Body: `<api>` + inner + `</api>`}
}

// Error scripts an API error response.
func Error(code, info string) MockResponse {
	return OK(fmt.Sprintf(`<error code=%q info=%q/>`, code, info))
}

// Lagged scripts a response carrying a replication-lag header.
func Lagged(seconds float64, retryAfter int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<api><error code="maxlag" info="lagged"/></api>`,
		Headers: map[string]string{
			"X-Database-Lag": fmt.Sprintf("%g", seconds),
			"Retry-After":    fmt.Sprintf("%d", retryAfter),
		},
	}
}

// Pages builds a query page: items as <p title="..."/> entries plus an
// optional continuation value.
func Pages(cont string, titles ...string) MockResponse {
	var b strings.Builder
	b.WriteString(`<query><pages>`)
	for _, t := range titles {
		fmt.Fprintf(&b, `<p title=%q/>`, t)
	}
	b.WriteString(`</pages></query>`)
	if cont != "" {
		fmt.Fprintf(&b, `<continue apcontinue=%q continue="-||"/>`, cont)
	}
	return OK(b.String())
}

// xmlAttr escapes value for use inside a double-quoted XML attribute. Go's
// %q is not suitable here: it backslash-escapes characters like \ and ",
// which XML does not unescape.
var xmlAttr = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;")

// Tokens builds a token-query response.
func Tokens(kind, value string) MockResponse {
	return OK(fmt.Sprintf(`<query><tokens %stoken="%s"/></query>`, kind, xmlAttr.Replace(value)))
}

// Upload builds an upload response.
func Upload(result, filekey string) MockResponse {
	if filekey == "" {
		return OK(fmt.Sprintf(`<upload result=%q/>`, result))
	}
	return OK(fmt.Sprintf(`<upload result=%q filekey=%q/>`, result, filekey))
}
