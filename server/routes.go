package server

func (s *Server) initRoutes() {
	s.RegisterRouteHandler("GET "+RouteHealth, ChainMiddleware(s.HealthHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler(RouteProxy, ChainMiddleware(s.ProxyHandler(), s.APIMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteClientToken, ChainMiddleware(s.CachedClientTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteClientToken, ChainMiddleware(s.AcquireClientTokenHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteClientToken, ChainMiddleware(s.DeleteClientTokenHandler(), s.APIMiddleware()...))

	if s.services.UserTokens == nil {
		return
	}
	s.RegisterRouteHandler(RouteUserProxy, ChainMiddleware(s.UserProxyHandler(), s.UserMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteUserToken, ChainMiddleware(s.RevokeUserTokenHandler(), s.UserMiddleware()...))
}
