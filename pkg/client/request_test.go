package client

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/nachtfalke/wiki-action-client/pkg/params"
)

func TestNewGet_BuildsQueryString(t *testing.T) {
	req := NewGet("query")
	if err := req.Set("titles", []string{"Foo", "Bar"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := req.Set("rvlimit", 10); err != nil {
		t.Fatalf("Set: %v", err)
	}

	httpReq, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", map[string]string{"format": "xml"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	q := httpReq.URL.Query()
	if q.Get("action") != "query" {
		t.Errorf("action = %q, want query", q.Get("action"))
	}
	if q.Get("titles") != "Foo|Bar" {
		t.Errorf("titles = %q, want Foo|Bar", q.Get("titles"))
	}
	if q.Get("rvlimit") != "10" {
		t.Errorf("rvlimit = %q, want 10", q.Get("rvlimit"))
	}
	if q.Get("format") != "xml" {
		t.Errorf("format = %q, want xml", q.Get("format"))
	}
	if httpReq.Method != http.MethodGet {
		t.Errorf("method = %q, want GET", httpReq.Method)
	}
}

func TestBuild_ExtraDoesNotOverrideRequestParams(t *testing.T) {
	req := NewGet("query")
	if err := req.SetQuery("format", "json"); err != nil {
		t.Fatalf("SetQuery: %v", err)
	}

	httpReq, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", map[string]string{"format": "xml"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := httpReq.URL.Query().Get("format"); got != "json" {
		t.Errorf("format = %q, want request-set json to win", got)
	}
}

func TestNewPost_FormBody(t *testing.T) {
	req := NewPost("edit").AsWrite()
	if err := req.Set("title", "Main Page"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := req.Set("basetimestamp", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if !req.IsWrite() {
		t.Error("AsWrite should mark the request as write-class")
	}

	httpReq, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ct := httpReq.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", ct)
	}

	body, _ := io.ReadAll(httpReq.Body)
	if !strings.Contains(string(body), "title=Main+Page") {
		t.Errorf("body missing title: %s", body)
	}
	if !strings.Contains(string(body), "basetimestamp=2024-01-02T03%3A04%3A05Z") {
		t.Errorf("body missing timestamp: %s", body)
	}
	// Action stays in the query string for POST requests.
	if httpReq.URL.Query().Get("action") != "edit" {
		t.Errorf("action not in query string: %s", httpReq.URL)
	}
}

func TestMultipartBody(t *testing.T) {
	req := NewPost("upload")
	if err := req.Set("filename", "Example.png"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data := []byte{0x89, 0x50, 0x4e, 0x47}
	if err := req.SetFile("file", "Example.png", data); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	if !req.IsMultipart() {
		t.Fatal("request should be multipart")
	}

	httpReq, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	mediaType, mtParams, err := mime.ParseMediaType(httpReq.Header.Get("Content-Type"))
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Errorf("media type = %q", mediaType)
	}
	if mtParams["boundary"] == "" {
		t.Fatal("boundary missing")
	}

	mr := multipart.NewReader(httpReq.Body, mtParams["boundary"])
	form, err := mr.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	if got := form.Value["filename"]; len(got) != 1 || got[0] != "Example.png" {
		t.Errorf("filename field = %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("file parts = %d, want 1", len(files))
	}
	if files[0].Size != int64(len(data)) {
		t.Errorf("file size = %d, want %d", files[0].Size, len(data))
	}
}

func TestSet_BinaryRejected(t *testing.T) {
	req := NewPost("upload")
	err := req.Set("file", []byte{1, 2, 3})
	if !errors.Is(err, params.ErrBinaryValue) {
		t.Errorf("Expected ErrBinaryValue, got %v", err)
	}
}

func TestSetFile_OnGetRejected(t *testing.T) {
	req := NewGet("query")
	err := req.SetFile("file", "a.bin", []byte{1})
	if !errors.Is(err, params.ErrBinaryValue) {
		t.Errorf("Expected ErrBinaryValue, got %v", err)
	}
}

func TestBuild_Reusable(t *testing.T) {
	// A request is re-sent across retry attempts; building twice must give
	// identical bodies.
	req := NewPost("edit")
	if err := req.Set("text", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	r1, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	r2, err := req.build(context.Background(), "https://wiki.example.org/w/api.php", nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	b1, _ := io.ReadAll(r1.Body)
	b2, _ := io.ReadAll(r2.Body)
	if string(b1) != string(b2) {
		t.Errorf("rebuilt bodies differ: %q vs %q", b1, b2)
	}
}
