package config

import (
	"fmt"
	"os"

	"github.com/jrsteele09/go-token-manager/clientconfig"
	"github.com/jrsteele09/go-token-manager/clients"
	"gopkg.in/yaml.v3"
)

// File is the YAML configuration file: the named client table and the OIDC schemes.
//
//	clients:
//	  - name: billing
//	    address: https://idp.example.com/oauth2/token
//	    client_id: billing-service
//	    client_secret: s3cret
//	    scope: invoices.read
//	    upstream: https://billing.internal
//	schemes:
//	  - name: oidc
//	    authority: https://idp.example.com
//	    client_id: web
//	    client_secret: web-secret
type File struct {
	Clients []*clients.Client     `yaml:"clients"`
	Schemes []clientconfig.Scheme `yaml:"schemes"`
}

// LoadFile reads and validates the configuration file. An empty path yields an empty File.
func LoadFile(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (*File, error) {
	file := &File{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	names := make(map[string]struct{}, len(file.Clients))
	for _, client := range file.Clients {
		if client == nil {
			return nil, fmt.Errorf("config file: empty client entry")
		}
		if err := client.Validate(); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if _, ok := names[client.Name]; ok {
			return nil, fmt.Errorf("config file: duplicate client %q", client.Name)
		}
		names[client.Name] = struct{}{}
	}

	schemes := make(map[string]struct{}, len(file.Schemes))
	for _, scheme := range file.Schemes {
		if scheme.Name == "" {
			return nil, fmt.Errorf("config file: scheme name is required")
		}
		if scheme.Authority == "" && scheme.TokenEndpoint == "" {
			return nil, fmt.Errorf("config file: scheme %q needs an authority or a token endpoint", scheme.Name)
		}
		if _, ok := schemes[scheme.Name]; ok {
			return nil, fmt.Errorf("config file: duplicate scheme %q", scheme.Name)
		}
		schemes[scheme.Name] = struct{}{}
	}
	return file, nil
}
