// Package session holds the cross-request mutable state of one logical API
// session: the cookie jar, the action-token cache, identity and assertion
// flags, and the periodic status check counter. All shared state is guarded
// by a session-scoped mutex.
package session

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
)

// TokenKind names a cached action token.
type TokenKind string

// Token kinds used by write-class actions.
const (
	TokenCSRF     TokenKind = "csrf"
	TokenLogin    TokenKind = "login"
	TokenWatch    TokenKind = "watch"
	TokenRollback TokenKind = "rollback"
	TokenPatrol   TokenKind = "patrol"
)

// Identity describes the authenticated user behind the session.
type Identity struct {
	Name string

	// Rights are the granted right names, as reported by the server.
	Rights []string

	// HighLimits is true for privileged sessions allowed larger batch caps.
	HighLimits bool
}

// HasRight reports whether the identity carries the named right.
func (id *Identity) HasRight(name string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Rights {
		if r == name {
			return true
		}
	}
	return false
}

// Status is the result of a periodic status check.
type Status struct {
	Identity       *Identity
	HasNewMessages bool
}

// StatusChecker re-validates the session identity against the server. A
// non-nil error aborts the in-flight operation as an assertion failure.
type StatusChecker func(ctx context.Context) (*Status, error)

// Session is the cookie/token store for one logical client. It is safe for
// concurrent use by multiple goroutines.
type Session struct {
	mu sync.Mutex

	base   *url.URL
	jar    http.CookieJar
	tokens map[TokenKind]string

	identity *Identity

	// AssertUser and AssertBot request server-side assertions on every
	// call; a failed assertion surfaces as a fatal error and invalidates
	// cached tokens.
	assertUser bool
	assertBot  bool

	actionsSinceCheck int
	statusInterval    int
	checker           StatusChecker

	logger zerolog.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithStatusChecker installs the identity re-validation hook, run after
// every interval-th write action. Interval must be positive.
func WithStatusChecker(checker StatusChecker, interval int) Option {
	return func(s *Session) {
		s.checker = checker
		s.statusInterval = interval
	}
}

// WithLogger injects the session logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithAssertions enables server-side user/bot assertions.
func WithAssertions(user, bot bool) Option {
	return func(s *Session) {
		s.assertUser = user
		s.assertBot = bot
	}
}

// New creates a session for the given API base URL.
func New(baseURL string, opts ...Option) (*Session, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	// cookiejar.New only fails for a non-nil Options value with a nil
	// PublicSuffixList; nil options never error.
	jar, _ := cookiejar.New(nil)

	s := &Session{
		base:           base,
		jar:            jar,
		tokens:         make(map[TokenKind]string),
		statusInterval: DefaultStatusInterval,
		logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// DefaultStatusInterval is the number of write actions between identity
// re-validations.
const DefaultStatusInterval = 100

// Jar exposes the cookie jar for wiring into an http.Client. The jar is the
// only cross-request mutable state besides the token cache; the http stack
// updates it from every response.
func (s *Session) Jar() http.CookieJar {
	return s.jar
}

// TokenFor returns the cached token of the given kind, fetching it on demand
// via fetch. Cached entries are never proactively expired; only
// InvalidateTokens (or an assertion failure) clears them.
func (s *Session) TokenFor(ctx context.Context, kind TokenKind, fetch func(ctx context.Context) (string, error)) (string, error) {
	s.mu.Lock()
	if tok, ok := s.tokens[kind]; ok {
		s.mu.Unlock()
		s.logger.Debug().Str("token_kind", string(kind)).Msg("Token cache hit")
		return tok, nil
	}
	s.mu.Unlock()

	tok, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("fetch %s token: %w", kind, err)
	}

	s.mu.Lock()
	s.tokens[kind] = tok
	s.mu.Unlock()
	return tok, nil
}

// InvalidateTokens drops every cached token. Called on assertion failures
// and available to callers after credential changes.
func (s *Session) InvalidateTokens() {
	s.mu.Lock()
	n := len(s.tokens)
	s.tokens = make(map[TokenKind]string)
	s.mu.Unlock()
	if n > 0 {
		s.logger.Debug().Int("dropped", n).Msg("Token cache invalidated")
	}
}

// SetIdentity records the authenticated identity.
func (s *Session) SetIdentity(id *Identity) {
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()
}

// Identity returns the current identity, nil for anonymous sessions.
func (s *Session) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// HighLimits reports whether the session is privileged for bulk requests.
func (s *Session) HighLimits() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil && s.identity.HighLimits
}

// Assertions returns the assert flags requested for every call.
func (s *Session) Assertions() (user, bot bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assertUser, s.assertBot
}

// RecordWrite counts a write action and runs the status checker after every
// interval-th write. A failed re-validation returns the checker error; the
// caller surfaces it as a fatal assertion failure.
func (s *Session) RecordWrite(ctx context.Context) error {
	s.mu.Lock()
	s.actionsSinceCheck++
	due := s.checker != nil && s.statusInterval > 0 && s.actionsSinceCheck >= s.statusInterval
	if due {
		s.actionsSinceCheck = 0
	}
	checker := s.checker
	s.mu.Unlock()

	if !due {
		return nil
	}

	status, err := checker(ctx)
	if err != nil {
		return fmt.Errorf("status check: %w", err)
	}
	if status.HasNewMessages {
		s.logger.Warn().Msg("Session has new messages")
	}
	if status.Identity != nil {
		s.SetIdentity(status.Identity)
	}
	return nil
}
