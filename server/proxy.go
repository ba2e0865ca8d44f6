package server

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/transport"
)

// ProxyHandler forwards /proxy/{client}/{path...} to the client's upstream with a
// client-credentials token of that client.
func (s *Server) ProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, clientName, ok := s.upstream(w, r)
		if !ok {
			return
		}
		rt := transport.NewClientTokenTransport(s.services.ClientTokens, clientName, tokenParameters(r),
			transport.WithBase(s.services.Upstream),
			transport.WithLogger(s.logger),
		)
		s.reverseProxy(target, r.PathValue("path"), rt).ServeHTTP(w, r)
	}
}

// UserProxyHandler forwards /user-proxy/{client}/{path...} to the client's upstream with the
// signed-in user's access token.
func (s *Server) UserProxyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, _, ok := s.upstream(w, r)
		if !ok {
			return
		}
		rt := transport.NewUserTokenTransport(s.services.UserTokens, userTokenParameters(r),
			transport.WithBase(s.services.Upstream),
			transport.WithLogger(s.logger),
		)
		s.reverseProxy(target, r.PathValue("path"), rt).ServeHTTP(w, r)
	}
}

func (s *Server) upstream(w http.ResponseWriter, r *http.Request) (*url.URL, string, bool) {
	clientName := r.PathValue("client")
	client, err := s.services.Clients.Get(clientName)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown client")
		return nil, "", false
	}
	if client.Upstream == "" {
		writeError(w, http.StatusNotFound, "client has no upstream")
		return nil, "", false
	}
	target, err := url.Parse(client.Upstream)
	if err != nil || target.Scheme == "" || target.Host == "" {
		s.logger.Error().Err(err).Str("client", clientName).Str("upstream", client.Upstream).Msg("invalid upstream url")
		writeError(w, http.StatusInternalServerError, "invalid upstream")
		return nil, "", false
	}
	return target, client.Name, true
}

func (s *Server) reverseProxy(target *url.URL, path string, rt http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			joined := target.JoinPath(path)
			pr.Out.URL.Path = joined.Path
			pr.Out.URL.RawPath = joined.RawPath
			// the caller's credentials are not forwarded upstream
			pr.Out.Header.Del("Authorization")
			pr.Out.Header.Del("Cookie")
			pr.Out.Header.Del(HeaderTokenResource)
			pr.Out.Header.Del(HeaderTokenScope)
			pr.Out.Header.Del(HeaderTokenScheme)
			pr.SetXForwarded()
		},
		Transport: rt,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if tmerrors.Is(err, oauthmodel.ErrConfiguration) {
				s.logger.Error().Err(err).Str("upstream", target.Host).Msg("token configuration error")
				writeError(w, http.StatusInternalServerError, "token configuration error")
				return
			}
			s.logger.Warn().Err(err).Str("upstream", target.Host).Msg("upstream request failed")
			writeError(w, http.StatusBadGateway, "upstream request failed")
		},
	}
}

// Headers selecting the token of a proxied request. They are not forwarded.
const (
	HeaderTokenResource = "X-Token-Resource"
	HeaderTokenScope    = "X-Token-Scope"
	HeaderTokenScheme   = "X-Token-Scheme"
)

func tokenParameters(r *http.Request) *oauthmodel.ClientAccessTokenParameters {
	return &oauthmodel.ClientAccessTokenParameters{
		Resource: r.Header.Get(HeaderTokenResource),
		Scope:    r.Header.Get(HeaderTokenScope),
	}
}

func userTokenParameters(r *http.Request) *oauthmodel.UserAccessTokenParameters {
	return &oauthmodel.UserAccessTokenParameters{
		Resource:        r.Header.Get(HeaderTokenResource),
		ChallengeScheme: r.Header.Get(HeaderTokenScheme),
	}
}
