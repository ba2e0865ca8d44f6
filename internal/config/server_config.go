package config

import "fmt"

type Server struct{}

var _ ServerConfig = Server{}

func (Server) GetPort() string {
	port := GetEnv("PORT", "8080")
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (Server) GetSessionName() string {
	return GetEnv("SESSION_NAME", "tm_session")
}

// GetSessionSecret is the key authenticating session cookies. Empty disables the user proxy.
func (Server) GetSessionSecret() string {
	return GetEnv("SESSION_SECRET", "")
}

func (Server) GetSecureCookies() bool {
	return getBool("SECURE_COOKIES", true)
}
