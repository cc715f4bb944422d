package wikixml

import (
	"testing"

	"github.com/nachtfalke/wiki-action-client/pkg/client"
)

func TestDecodeError_CodeClassification(t *testing.T) {
	tests := []struct {
		code string
		want client.ErrorKind
	}{
		{"maxlag", client.KindLag},
		{"ratelimited", client.KindRateLimited},
		{"readonly", client.KindReadOnly},
		{"blocked", client.KindBlocked},
		{"autoblocked", client.KindBlocked},
		{"locked", client.KindBlocked},
		{"editconflict", client.KindConflict},
		{"protectedpage", client.KindProtected},
		{"cascadeprotected", client.KindProtected},
		{"cantmove-anon", client.KindProtected},
		{"permissiondenied", client.KindPermission},
		{"writeapidenied", client.KindPermission},
		{"badtoken", client.KindAssert},
		{"assertuserfailed", client.KindAssert},
		{"assertbotfailed", client.KindAssert},
		{"some-new-code", client.KindUnknown},
	}

	d := New()
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			body := []byte(`<api><error code="` + tt.code + `" info="details"/></api>`)
			cond := d.DecodeError(body)
			if cond == nil {
				t.Fatal("Expected a condition")
			}
			if cond.Kind != tt.want {
				t.Errorf("kind = %s, want %s", cond.Kind, tt.want)
			}
			if cond.Code != tt.code || cond.Message != "details" {
				t.Errorf("code = %q, message = %q", cond.Code, cond.Message)
			}
		})
	}
}

func TestDecodeError_Success(t *testing.T) {
	d := New()
	if cond := d.DecodeError([]byte(`<api><query><pages/></query></api>`)); cond != nil {
		t.Errorf("Expected nil for success body, got %+v", cond)
	}
}

func TestDecodeError_NothingToDo(t *testing.T) {
	d := New()
	cond := d.DecodeError([]byte(`<api><edit result="Success" nochange=""/></api>`))
	if cond == nil {
		t.Fatal("Expected a soft condition")
	}
	if cond.Kind != client.KindNothingToDo {
		t.Errorf("kind = %s, want nothing-to-do", cond.Kind)
	}
	if cond.Kind.Fatal() || cond.Kind.Transient() {
		t.Error("nothing-to-do must be neither fatal nor transient")
	}
}

func TestDecodeError_ErrorWinsOverNochange(t *testing.T) {
	d := New()
	body := []byte(`<api><edit nochange=""/><error code="readonly" info="maintenance"/></api>`)
	cond := d.DecodeError(body)
	if cond == nil || cond.Kind != client.KindReadOnly {
		t.Errorf("Expected readonly error to win, got %+v", cond)
	}
}

func TestDecodeError_NonXMLBody(t *testing.T) {
	d := New()
	if cond := d.DecodeError([]byte("<html>gateway timeout")); cond != nil {
		t.Errorf("Expected nil for undecodable body, got %+v", cond)
	}
}

func TestDecodeContinuation(t *testing.T) {
	d := New()
	body := []byte(`<api><query/><continue apcontinue="Zebra" continue="-||"/></api>`)
	cursor := d.DecodeContinuation(body)
	if len(cursor) != 2 {
		t.Fatalf("cursor = %v, want 2 params", cursor)
	}
	params := map[string]string{}
	for _, p := range cursor {
		params[p.Key] = p.Value
	}
	if params["apcontinue"] != "Zebra" || params["continue"] != "-||" {
		t.Errorf("cursor params = %v", params)
	}
}

func TestDecodeContinuation_Absent(t *testing.T) {
	d := New()
	if cursor := d.DecodeContinuation([]byte(`<api><query/></api>`)); cursor != nil {
		t.Errorf("Expected nil cursor, got %v", cursor)
	}
	if cursor := d.DecodeContinuation([]byte(`<api><continue/></api>`)); cursor != nil {
		t.Errorf("Expected nil cursor for empty continue element, got %v", cursor)
	}
}

func TestDecodeToken(t *testing.T) {
	d := New()
	body := []byte(`<api><query><tokens csrftoken="abc+\"/></query></api>`)

	tok, ok := d.DecodeToken(body, "csrf")
	if !ok || tok != `abc+\` {
		t.Errorf("token = %q, ok = %v", tok, ok)
	}
	if _, ok := d.DecodeToken(body, "watch"); ok {
		t.Error("Expected watch token to be absent")
	}
	if _, ok := d.DecodeToken([]byte(`<api/>`), "csrf"); ok {
		t.Error("Expected no token without a tokens element")
	}
}

func TestDecodeWarnings(t *testing.T) {
	d := New()
	body := []byte(`<api><warnings><query>Unrecognized parameter: foo.</query><main>Subscribe to the api announce list.</main></warnings><query/></api>`)

	warnings := d.DecodeWarnings(body)
	if len(warnings) != 2 {
		t.Fatalf("warnings = %v, want 2 entries", warnings)
	}
	if warnings[0] != "query: Unrecognized parameter: foo." {
		t.Errorf("warnings[0] = %q", warnings[0])
	}
	if warnings[1] != "main: Subscribe to the api announce list." {
		t.Errorf("warnings[1] = %q", warnings[1])
	}

	if got := d.DecodeWarnings([]byte(`<api><query/></api>`)); got != nil {
		t.Errorf("Expected no warnings, got %v", got)
	}
}

func TestDecodeUpload(t *testing.T) {
	res, err := DecodeUpload([]byte(`<api><upload result="Continue" filekey="fk.1.png"/></api>`))
	if err != nil {
		t.Fatalf("DecodeUpload: %v", err)
	}
	if res.Filekey != "fk.1.png" || res.Success {
		t.Errorf("result = %+v", res)
	}

	res, err = DecodeUpload([]byte(`<api><upload result="Success" filekey="fk.1.png"/></api>`))
	if err != nil {
		t.Fatalf("DecodeUpload: %v", err)
	}
	if !res.Success {
		t.Error("Expected success")
	}

	// Older servers report the stash handle as sessionkey.
	res, err = DecodeUpload([]byte(`<api><upload result="Continue" sessionkey="sk.2"/></api>`))
	if err != nil {
		t.Fatalf("DecodeUpload: %v", err)
	}
	if res.Filekey != "sk.2" {
		t.Errorf("filekey = %q, want sessionkey fallback", res.Filekey)
	}

	if _, err := DecodeUpload([]byte(`<api><query/></api>`)); err == nil {
		t.Error("Expected error without an upload element")
	}
}
