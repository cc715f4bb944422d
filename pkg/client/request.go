package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/nachtfalke/wiki-action-client/pkg/params"
)

// FilePart is a binary form field carried by a multipart request.
type FilePart struct {
	Field    string
	Filename string
	Data     []byte
}

// Request is one logical API request. It is built once and consumed once;
// the executor never mutates it, so a single request may be re-sent across
// retry attempts.
type Request struct {
	method string
	action string
	query  map[string]string
	body   map[string]string
	files  []FilePart
	write  bool
}

// NewGet creates a GET request for the given API action. All parameters are
// encoded into the query string.
func NewGet(action string) *Request {
	return &Request{
		method: http.MethodGet,
		action: action,
		query:  map[string]string{"action": action},
		body:   map[string]string{},
	}
}

// NewPost creates a POST request for the given API action. Parameters set
// with Set go into the form body; query parameters can still be added with
// SetQuery.
func NewPost(action string) *Request {
	return &Request{
		method: http.MethodPost,
		action: action,
		query:  map[string]string{"action": action},
		body:   map[string]string{},
	}
}

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// Action returns the API action name.
func (r *Request) Action() string { return r.action }

// IsWrite reports whether the request is a write-class action.
func (r *Request) IsWrite() bool { return r.write }

// IsMultipart reports whether any parameter is binary.
func (r *Request) IsMultipart() bool { return len(r.files) > 0 }

// QueryParam returns an encoded query parameter, empty when unset.
func (r *Request) QueryParam(key string) string { return r.query[key] }

// BodyParam returns an encoded body parameter, empty when unset.
func (r *Request) BodyParam(key string) string { return r.body[key] }

// FileParam returns the binary payload of a file field, nil when unset.
func (r *Request) FileParam(field string) []byte {
	for _, f := range r.files {
		if f.Field == field {
			return f.Data
		}
	}
	return nil
}

// AsWrite marks the request as a write-class action, routing it through the
// session throttle and the periodic status check.
func (r *Request) AsWrite() *Request {
	r.write = true
	return r
}

// Set encodes and stores a parameter: query string for GET, form body for
// POST. Binary values must use SetFile.
func (r *Request) Set(key string, value any) error {
	wire, err := params.Encode(value)
	if err != nil {
		return fmt.Errorf("encode parameter %q: %w", key, err)
	}
	if r.method == http.MethodGet {
		r.query[key] = wire
	} else {
		r.body[key] = wire
	}
	return nil
}

// SetQuery encodes and stores a query-string parameter regardless of method.
func (r *Request) SetQuery(key string, value any) error {
	wire, err := params.Encode(value)
	if err != nil {
		return fmt.Errorf("encode parameter %q: %w", key, err)
	}
	r.query[key] = wire
	return nil
}

// SetFile attaches a binary form field. The request becomes multipart; only
// POST requests may carry files.
func (r *Request) SetFile(field, filename string, data []byte) error {
	if r.method != http.MethodPost {
		return fmt.Errorf("file field %q: %w", field, params.ErrBinaryValue)
	}
	r.files = append(r.files, FilePart{Field: field, Filename: filename, Data: data})
	return nil
}

// queryString renders the query parameters plus extra executor parameters,
// sorted for deterministic URLs.
func (r *Request) queryString(extra map[string]string) string {
	v := url.Values{}
	for k, val := range r.query {
		v.Set(k, val)
	}
	for k, val := range extra {
		if _, taken := r.query[k]; !taken {
			v.Set(k, val)
		}
	}
	return v.Encode()
}

// build constructs the physical HTTP request. Extra parameters (maxlag,
// format, assertions, continuation) are merged without touching the request
// itself, keeping it reusable across attempts.
func (r *Request) build(ctx context.Context, endpoint string, extra map[string]string) (*http.Request, error) {
	if r.method == http.MethodGet {
		u := endpoint + "?" + r.queryString(extra)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		return req, nil
	}

	u := endpoint + "?" + r.queryString(extra)
	if r.IsMultipart() {
		body, contentType, err := r.multipartBody()
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}

	form := url.Values{}
	for k, val := range r.body {
		form.Set(k, val)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

// multipartBody renders body parameters and file parts as multipart/form-data
// with a locally generated boundary.
func (r *Request) multipartBody() ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary("--------" + uuid.NewString()); err != nil {
		return nil, "", fmt.Errorf("set multipart boundary: %w", err)
	}

	// Deterministic field order keeps request bodies reproducible in tests.
	keys := make([]string, 0, len(r.body))
	for k := range r.body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := w.WriteField(k, r.body[k]); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", k, err)
		}
	}

	for _, f := range r.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		h.Set("Content-Type", "application/octet-stream")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %q: %w", f.Field, err)
		}
		if _, err := io.Copy(part, bytes.NewReader(f.Data)); err != nil {
			return nil, "", fmt.Errorf("write file part %q: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
