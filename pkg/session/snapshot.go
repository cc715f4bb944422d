package session

import (
	"net/http"
	"time"
)

// Cookie is the serializable form of one session cookie.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Path   string `json:"path,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Snapshot is the exported cookie and token state of a session as plain
// data. Reconstructing a session from a snapshot replaces implicit object
// serialization: build a fresh Session, then Restore.
type Snapshot struct {
	BaseURL  string               `json:"base_url"`
	Cookies  []Cookie             `json:"cookies,omitempty"`
	Tokens   map[TokenKind]string `json:"tokens,omitempty"`
	Identity *Identity            `json:"identity,omitempty"`
	TakenAt  time.Time            `json:"taken_at"`
}

// Snapshot exports the cookies scoped to the session's base URL plus the
// token cache and identity.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &Snapshot{
		BaseURL: s.base.String(),
		Tokens:  make(map[TokenKind]string, len(s.tokens)),
		TakenAt: time.Now().UTC(),
	}
	for k, v := range s.tokens {
		snap.Tokens[k] = v
	}
	if s.identity != nil {
		id := *s.identity
		id.Rights = append([]string(nil), s.identity.Rights...)
		snap.Identity = &id
	}
	for _, c := range s.jar.Cookies(s.base) {
		snap.Cookies = append(snap.Cookies, Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		})
	}
	return snap
}

// Restore loads a snapshot into the session, replacing the token cache and
// setting the snapshot cookies on the jar.
func (s *Session) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}

	cookies := make([]*http.Cookie, 0, len(snap.Cookies))
	for _, c := range snap.Cookies {
		cookies = append(cookies, &http.Cookie{
			Name:   c.Name,
			Value:  c.Value,
			Path:   c.Path,
			Domain: c.Domain,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = make(map[TokenKind]string, len(snap.Tokens))
	for k, v := range snap.Tokens {
		s.tokens[k] = v
	}
	if snap.Identity != nil {
		id := *snap.Identity
		id.Rights = append([]string(nil), snap.Identity.Rights...)
		s.identity = &id
	}
	if len(cookies) > 0 {
		s.jar.SetCookies(s.base, cookies)
	}
}
