package server

import (
	"net/http"
	"strconv"
	"time"

	tmerrors "github.com/jrsteele09/go-token-manager/internal/errors"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/usertoken"
)

// ClientTokenStatus describes a client token without disclosing it.
type ClientTokenStatus struct {
	Client      string    `json:"client"`
	AccessToken string    `json:"access_token"`
	Expiration  time.Time `json:"expiration"`
	Scope       string    `json:"scope,omitempty"`
}

func clientTokenStatus(clientName string, t *token.ClientAccessToken) ClientTokenStatus {
	return ClientTokenStatus{
		Client:      clientName,
		AccessToken: token.Redact(t.AccessToken),
		Expiration:  t.Expiration,
		Scope:       t.Scope,
	}
}

// queryParameters reads resource and scope overrides of the token admin routes.
func queryParameters(r *http.Request) *oauthmodel.ClientAccessTokenParameters {
	q := r.URL.Query()
	force, _ := strconv.ParseBool(q.Get("force"))
	return &oauthmodel.ClientAccessTokenParameters{
		ForceRenewal: force,
		Resource:     q.Get("resource"),
		Scope:        q.Get("scope"),
	}
}

// CachedClientTokenHandler reports the cached token of a client. It never contacts the
// authorization server.
func (s *Server) CachedClientTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientName := r.PathValue("client")
		t := s.services.ClientTokens.CachedClientAccessToken(r.Context(), clientName, queryParameters(r))
		if t == nil {
			writeError(w, http.StatusNotFound, "no cached token")
			return
		}
		writeJSON(w, http.StatusOK, clientTokenStatus(clientName, t))
	}
}

// AcquireClientTokenHandler obtains a token for a client, from the cache unless force=true.
func (s *Server) AcquireClientTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientName := r.PathValue("client")
		t, err := s.services.ClientTokens.GetClientAccessToken(r.Context(), clientName, queryParameters(r))
		switch {
		case tmerrors.Is(err, tmerrors.ErrClientNotFound):
			writeError(w, http.StatusNotFound, "unknown client")
		case err != nil:
			s.logger.Error().Err(err).Str("client", clientName).Msg("client token request failed")
			writeError(w, http.StatusInternalServerError, "token configuration error")
		case t == nil:
			writeError(w, http.StatusBadGateway, "authorization server did not issue a token")
		default:
			writeJSON(w, http.StatusOK, clientTokenStatus(clientName, t))
		}
	}
}

func (s *Server) DeleteClientTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientName := r.PathValue("client")
		if err := s.services.ClientTokens.DeleteClientAccessToken(r.Context(), clientName, queryParameters(r)); err != nil {
			s.logger.Error().Err(err).Str("client", clientName).Msg("failed to delete cached token")
			writeError(w, http.StatusInternalServerError, "failed to delete token")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RevokeUserTokenHandler revokes the signed-in user's refresh token and ends the session.
func (s *Server) RevokeUserTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := usertoken.PrincipalFromContext(r.Context())
		q := r.URL.Query()
		params := &oauthmodel.UserAccessTokenParameters{
			Resource:        q.Get("resource"),
			ChallengeScheme: q.Get("scheme"),
		}
		if err := s.services.UserTokens.RevokeRefreshToken(r.Context(), principal, params); err != nil {
			s.logger.Error().Err(err).Str("subject", principal.Subject).Msg("refresh token revocation failed")
			writeError(w, http.StatusInternalServerError, "revocation failed")
			return
		}
		if err := s.services.Sessions.SignOut(w, r); err != nil {
			s.logger.Warn().Err(err).Str("subject", principal.Subject).Msg("failed to end session")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HealthHandler reports 200 when the cache backend answers.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services.Health != nil {
			if err := s.services.Health.Health(r.Context()); err != nil {
				s.logger.Warn().Err(err).Msg("health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
