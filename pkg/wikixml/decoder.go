// Package wikixml implements the response-decoding boundary for the
// MediaWiki-style XML wire format: error classification, continuation
// cursors, action tokens, and upload results. The request core never
// interprets the format itself, so a structured JSON decoder can be
// substituted without touching it.
package wikixml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/nachtfalke/wiki-action-client/pkg/client"
	"github.com/nachtfalke/wiki-action-client/pkg/upload"
)

// Decoder decodes the XML action-API format.
type Decoder struct{}

// New creates the XML decoder.
func New() *Decoder { return &Decoder{} }

// Format names the wire format requested from the server.
func (*Decoder) Format() string { return "xml" }

// DecodeError classifies the response body. A <error code info> element maps
// to its error kind; an element carrying a nochange attribute is the
// soft-success "nothing to do" condition. Returns nil for plain success.
func (*Decoder) DecodeError(body []byte) *client.Condition {
	var soft *client.Condition

	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return soft
		}
		el, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if el.Name.Local == "error" {
			cond := &client.Condition{}
			for _, a := range el.Attr {
				switch a.Name.Local {
				case "code":
					cond.Code = a.Value
				case "info":
					cond.Message = a.Value
				}
			}
			cond.Kind = kindForCode(cond.Code)
			return cond
		}
		if soft == nil {
			for _, a := range el.Attr {
				if a.Name.Local == "nochange" {
					soft = &client.Condition{
						Kind:    client.KindNothingToDo,
						Code:    "nochange",
						Message: fmt.Sprintf("%s reported no change", el.Name.Local),
					}
					break
				}
			}
		}
	}
}

// DecodeContinuation extracts the <continue> element's attributes as the
// cursor for the next page. Returns nil when the listing is exhausted.
func (*Decoder) DecodeContinuation(body []byte) client.Cursor {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "continue" {
			continue
		}
		cursor := make(client.Cursor, 0, len(el.Attr))
		for _, a := range el.Attr {
			cursor = append(cursor, client.CursorParam{Key: a.Name.Local, Value: a.Value})
		}
		if len(cursor) == 0 {
			return nil
		}
		return cursor
	}
}

// DecodeToken extracts a token of the given kind from a token-query
// response, e.g. the csrftoken attribute of the <tokens> element.
func (*Decoder) DecodeToken(body []byte, kind string) (string, bool) {
	attr := kind + "token"
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", false
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "tokens" {
			continue
		}
		for _, a := range el.Attr {
			if a.Name.Local == attr {
				return a.Value, true
			}
		}
		return "", false
	}
}

// DecodeWarnings extracts the text of every child of a <warnings> element,
// prefixed with the module name that produced it.
func (*Decoder) DecodeWarnings(body []byte) []string {
	var warnings []string
	dec := xml.NewDecoder(bytes.NewReader(body))
	inWarnings := false
	module := ""
	for {
		tok, err := dec.Token()
		if err != nil {
			return warnings
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "warnings" {
				inWarnings = true
			} else if inWarnings {
				module = el.Name.Local
			}
		case xml.EndElement:
			if el.Name.Local == "warnings" {
				inWarnings = false
			} else if inWarnings {
				module = ""
			}
		case xml.CharData:
			if inWarnings && module != "" {
				if text := strings.TrimSpace(string(el)); text != "" {
					warnings = append(warnings, module+": "+text)
				}
			}
		}
	}
}

// DecodeUpload extracts the filekey and completion state from an <upload>
// element. Satisfies upload.ResultDecoder.
func DecodeUpload(body []byte) (upload.Result, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := dec.Token()
		if err != nil {
			return upload.Result{}, fmt.Errorf("no upload element in response")
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "upload" {
			continue
		}
		var res upload.Result
		for _, a := range el.Attr {
			switch a.Name.Local {
			case "filekey", "sessionkey":
				if res.Filekey == "" {
					res.Filekey = a.Value
				}
			case "result":
				res.Success = a.Value == "Success"
			}
		}
		return res, nil
	}
}

// kindForCode maps server error codes to the core's error kinds. Unknown
// codes are fatal: retrying an unclassified failure risks repeating a write.
func kindForCode(code string) client.ErrorKind {
	switch code {
	case "maxlag":
		return client.KindLag
	case "ratelimited":
		return client.KindRateLimited
	case "readonly":
		return client.KindReadOnly
	case "blocked", "autoblocked", "locked":
		return client.KindBlocked
	case "editconflict":
		return client.KindConflict
	case "protectedpage", "protectedtitle", "protectednamespace", "protectednamespace-interface", "cascadeprotected", "customcssjsprotected", "immobilenamespace":
		return client.KindProtected
	case "permissiondenied", "noedit", "nocreate", "noimageredirect", "writeapidenied":
		return client.KindPermission
	case "badtoken", "notoken":
		return client.KindAssert
	}
	if strings.HasPrefix(code, "assert") {
		return client.KindAssert
	}
	if strings.HasPrefix(code, "cantmove") {
		return client.KindProtected
	}
	return client.KindUnknown
}
