package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-token-manager/clients"
	"github.com/jrsteele09/go-token-manager/internal/config"
	"github.com/jrsteele09/go-token-manager/oauthmodel"
	"github.com/jrsteele09/go-token-manager/token"
	"github.com/jrsteele09/go-token-manager/usertoken"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ClientTokenService is implemented by clienttoken.Manager.
type ClientTokenService interface {
	GetClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) (*token.ClientAccessToken, error)
	CachedClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) *token.ClientAccessToken
	DeleteClientAccessToken(ctx context.Context, clientName string, parameters *oauthmodel.ClientAccessTokenParameters) error
}

// UserTokenService is implemented by usertoken.Manager.
type UserTokenService interface {
	GetAccessToken(ctx context.Context, principal *usertoken.Principal, parameters *oauthmodel.UserAccessTokenParameters) (*token.UserToken, error)
	RevokeRefreshToken(ctx context.Context, principal *usertoken.Principal, parameters *oauthmodel.UserAccessTokenParameters) error
}

// SessionStore reads the signed-in user of a request and ends sessions.
// Implemented by sessionstore.Store.
type SessionStore interface {
	Principal(r *http.Request) (*usertoken.Principal, error)
	SignOut(w http.ResponseWriter, r *http.Request) error
}

// HealthChecker reports whether the token cache backend is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Services are the collaborators of the proxy. UserTokens and Sessions are optional; without
// them the user proxy routes are not registered.
type Services struct {
	Clients      clients.Repo
	ClientTokens ClientTokenService
	UserTokens   UserTokenService
	Sessions     SessionStore
	// Upstream is the transport requests to upstream APIs are sent through.
	Upstream http.RoundTripper
	Health   HealthChecker
}

type Server struct {
	env      string
	mux      *http.ServeMux
	routes   []string
	services Services
	logger   zerolog.Logger
}

func New(config config.Config, services Services) (*Server, error) {
	if services.Clients == nil || services.ClientTokens == nil {
		return nil, fmt.Errorf("[Server New] client repo and client token service are required")
	}
	if (services.UserTokens == nil) != (services.Sessions == nil) {
		return nil, fmt.Errorf("[Server New] user tokens and sessions must be configured together")
	}
	if services.Upstream == nil {
		services.Upstream = http.DefaultTransport
	}

	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		services: services,
		logger:   log.Logger,
	}
	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			s.logRoute(parts[0], parts[1])
		} else {
			s.logRoute("*", parts[0])
		}
	}
}

func (s *Server) logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	s.logger.Info().Msgf("[%s%s%s] %s", color, paddedMethod, ResetColor, path)
}
