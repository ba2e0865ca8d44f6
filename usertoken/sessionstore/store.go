// Package sessionstore keeps user tokens in a gorilla session. Store methods need the current
// request and response writer, which Middleware puts in the request context.
package sessionstore

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/usertoken"
	"github.com/pkg/errors"
)

// DefaultSessionName is the cookie/session name used when none is configured.
const DefaultSessionName = "tm_session"

const (
	subjectKey     = "sub"
	sessionIDKey   = "sid"
	tokenKeyPrefix = "tm.token."
)

var _ usertoken.Store = (*Store)(nil)

type httpContextKey struct{}

// httpContext is the request/response pair of the current request. gorilla's session
// registry replaces *r, so access is serialized.
type httpContext struct {
	mu sync.Mutex
	w  http.ResponseWriter
	r  *http.Request
}

// WithHTTPContext returns a context carrying w and r for the Store.
func WithHTTPContext(ctx context.Context, w http.ResponseWriter, r *http.Request) context.Context {
	return context.WithValue(ctx, httpContextKey{}, &httpContext{w: w, r: r})
}

// Middleware makes the request and response writer available to the Store.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hc := &httpContext{w: w}
		r = r.WithContext(context.WithValue(r.Context(), httpContextKey{}, hc))
		hc.r = r
		next.ServeHTTP(w, r)
	})
}

func fromContext(ctx context.Context) (*httpContext, error) {
	hc, ok := ctx.Value(httpContextKey{}).(*httpContext)
	if !ok || hc.r == nil {
		return nil, tmerrors.ErrNoHTTPContext
	}
	return hc, nil
}

type Store struct {
	sessions sessions.Store
	name     string
}

func New(store sessions.Store, sessionName string) *Store {
	if sessionName == "" {
		sessionName = DefaultSessionName
	}
	return &Store{
		sessions: store,
		name:     sessionName,
	}
}

// NewCookieStore is New over a gorilla CookieStore. keyPairs are the authentication and
// optional encryption keys.
func NewCookieStore(sessionName string, secure bool, keyPairs ...[]byte) *Store {
	cs := sessions.NewCookieStore(keyPairs...)
	cs.Options.HttpOnly = true
	cs.Options.Secure = secure
	cs.Options.SameSite = http.SameSiteLaxMode
	return New(cs, sessionName)
}

// storedToken is the session representation of a token.
type storedToken struct {
	AccessToken  string `json:"at,omitempty"`
	RefreshToken string `json:"rt,omitempty"`
	Expiration   int64  `json:"exp,omitempty"`
}

func entryName(principal *usertoken.Principal, parameters oauthmodel.UserAccessTokenParameters) string {
	return tokenKeyPrefix + token.Key("", "user", principal.Subject, usertoken.EntryKey(parameters))
}

func (s *Store) GetToken(ctx context.Context, principal *usertoken.Principal, parameters oauthmodel.UserAccessTokenParameters) (*token.UserAccessToken, error) {
	hc, err := fromContext(ctx)
	if err != nil {
		return nil, err
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	// an unreadable cookie yields a fresh session along with the error
	session, err := s.sessions.Get(hc.r, s.name)
	if err != nil && session == nil {
		return nil, errors.Wrap(err, "Store.GetToken")
	}
	raw, ok := session.Values[entryName(principal, parameters)].(string)
	if !ok {
		return nil, nil
	}

	var st storedToken
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, errors.Wrap(err, "Store.GetToken Unmarshal")
	}
	t := &token.UserAccessToken{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
	}
	if st.Expiration > 0 {
		t.Expiration = time.Unix(st.Expiration, 0).UTC()
	}
	return t, nil
}

func (s *Store) StoreToken(ctx context.Context, principal *usertoken.Principal, accessToken string, expiration time.Time, refreshToken string, parameters oauthmodel.UserAccessTokenParameters) error {
	data, err := encodeToken(accessToken, expiration, refreshToken)
	if err != nil {
		return err
	}
	return s.update(ctx, func(session *sessions.Session) {
		session.Values[entryName(principal, parameters)] = data
	})
}

func encodeToken(accessToken string, expiration time.Time, refreshToken string) (string, error) {
	st := storedToken{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if !expiration.IsZero() {
		st.Expiration = expiration.Unix()
	}
	data, err := json.Marshal(st)
	if err != nil {
		return "", errors.Wrap(err, "encodeToken Marshal")
	}
	return string(data), nil
}

func (s *Store) ClearToken(ctx context.Context, principal *usertoken.Principal, parameters oauthmodel.UserAccessTokenParameters) error {
	return s.update(ctx, func(session *sessions.Session) {
		delete(session.Values, entryName(principal, parameters))
	})
}

// Principal returns the signed-in user recorded in the session, or an anonymous principal.
func (s *Store) Principal(r *http.Request) (*usertoken.Principal, error) {
	session, err := s.sessions.Get(r, s.name)
	if err != nil && session == nil {
		return &usertoken.Principal{}, errors.Wrap(err, "Store.Principal")
	}
	sub, _ := session.Values[subjectKey].(string)
	sid, _ := session.Values[sessionIDKey].(string)
	return &usertoken.Principal{Subject: sub, SessionID: sid}, nil
}

// SignIn records principal and its initial tokens in the session. Hosts call it once their
// OIDC handshake has completed.
func (s *Store) SignIn(w http.ResponseWriter, r *http.Request, principal *usertoken.Principal, accessToken string, expiration time.Time, refreshToken string) error {
	data, err := encodeToken(accessToken, expiration, refreshToken)
	if err != nil {
		return err
	}
	ctx := WithHTTPContext(r.Context(), w, r)
	return s.update(ctx, func(session *sessions.Session) {
		session.Values[subjectKey] = principal.Subject
		session.Values[sessionIDKey] = principal.SessionID
		session.Values[entryName(principal, oauthmodel.UserAccessTokenParameters{})] = data
	})
}

// SignOut drops the whole session.
func (s *Store) SignOut(w http.ResponseWriter, r *http.Request) error {
	session, err := s.sessions.Get(r, s.name)
	if err != nil && session == nil {
		return errors.Wrap(err, "Store.SignOut")
	}
	session.Options.MaxAge = -1
	session.Values = make(map[interface{}]interface{})
	return session.Save(r, w)
}

func (s *Store) update(ctx context.Context, mutate func(session *sessions.Session)) error {
	hc, err := fromContext(ctx)
	if err != nil {
		return err
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()

	session, err := s.sessions.Get(hc.r, s.name)
	if err != nil && session == nil {
		return errors.Wrap(err, "Store.update")
	}
	mutate(session)
	if err := session.Save(hc.r, hc.w); err != nil {
		return errors.Wrap(err, "Store.update Save")
	}
	return nil
}
