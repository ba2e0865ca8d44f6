package server

// Route path constants
const (
	RouteHealth = "/healthz"

	// Egress proxy routes. {path...} is appended to the client's upstream URL.
	RouteProxy     = "/proxy/{client}/{path...}"
	RouteUserProxy = "/user-proxy/{client}/{path...}"

	// Token administration
	RouteClientToken = "/tokens/clients/{client}"
	RouteUserToken   = "/tokens/user"
)
