package cli_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-token-manager/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idp struct {
	*httptest.Server
	issued  atomic.Int32
	revoked atomic.Value
}

func newIDP(t *testing.T) *idp {
	t.Helper()
	p := &idp{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 p.URL,
			"authorization_endpoint": p.URL + "/authorize",
			"token_endpoint":         p.URL + "/token",
			"revocation_endpoint":    p.URL + "/revoke",
			"jwks_uri":               p.URL + "/jwks",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		n := p.issued.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":"cli-token-%d","token_type":"Bearer","expires_in":3600}`, n)
	})
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.revoked.Store(r.PostForm.Get("token") + "/" + r.PostForm.Get("token_type_hint"))
		w.WriteHeader(http.StatusOK)
	})
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func writeConfig(t *testing.T, p *idp) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tokenctl.yaml")
	content := fmt.Sprintf(`
clients:
  - name: billing
    address: %[1]s/token
    revocation_address: %[1]s/revoke
    client_id: billing-service
    client_secret: s3cret
    scope: invoices.read
schemes:
  - name: oidc
    authority: %[1]s
    client_id: web
    client_secret: web-secret
`, p.URL)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("TOKEN_ENDPOINT_RETRIES", "1")
	var out bytes.Buffer
	cmd := cli.NewRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClientsList(t *testing.T) {
	p := newIDP(t)
	out, err := execute(t, "--config", writeConfig(t, p), "clients", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "billing-service")
	assert.Contains(t, out, "invoices.read")
	assert.NotContains(t, out, "s3cret")
}

func TestTokenGet(t *testing.T) {
	p := newIDP(t)
	out, err := execute(t, "--config", writeConfig(t, p), "token", "get", "billing")
	require.NoError(t, err)

	var status map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, "billing", status["client"])
	assert.NotEqual(t, "cli-token-1", status["access_token"])
	assert.NotEmpty(t, status["expiration"])
}

func TestTokenGet_Raw(t *testing.T) {
	p := newIDP(t)
	out, err := execute(t, "--config", writeConfig(t, p), "token", "get", "billing", "--raw", "--force")
	require.NoError(t, err)
	assert.Equal(t, "cli-token-1\n", out)
}

func TestTokenGet_UnknownClient(t *testing.T) {
	p := newIDP(t)
	_, err := execute(t, "--config", writeConfig(t, p), "token", "get", "payroll")
	assert.Error(t, err)
	assert.Zero(t, p.issued.Load())
}

func TestTokenRevoke(t *testing.T) {
	p := newIDP(t)
	out, err := execute(t, "--config", writeConfig(t, p), "token", "revoke", "some-token", "--client", "billing")
	require.NoError(t, err)
	assert.Equal(t, "revoked\n", out)
	assert.Equal(t, "some-token/access_token", p.revoked.Load())
}

func TestTokenRevoke_WithDiscoveredScheme(t *testing.T) {
	p := newIDP(t)
	_, err := execute(t, "--config", writeConfig(t, p), "token", "revoke", "rt-1", "--scheme", "oidc", "--hint", "refresh_token")
	require.NoError(t, err)
	assert.Equal(t, "rt-1/refresh_token", p.revoked.Load())
}

func TestSchemesResolve(t *testing.T) {
	p := newIDP(t)
	out, err := execute(t, "--config", writeConfig(t, p), "schemes", "resolve", "oidc")
	require.NoError(t, err)
	assert.Contains(t, out, p.URL+"/token")
	assert.Contains(t, out, p.URL+"/revoke")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "clients", "list")
	assert.Error(t, err)
}
