package credentials

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

const validKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    server: https://example.com:6443
  name: test
contexts:
- context:
    cluster: test
    user: test
  name: test
current-context: test
users:
- name: test
  user:
    token: abc123
`

func newTestResolver(t *testing.T, vaultURL string) *Resolver {
	t.Helper()

	var client *vault.Client
	if vaultURL != "" {
		cfg := vault.DefaultConfig()
		cfg.Address = vaultURL
		var err error
		client, err = vault.NewClient(cfg)
		require.NoError(t, err)
		client.SetToken("test-token")
	}

	r := NewResolver(client, "secret", logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	r.retryMaxElapsed = 500 * time.Millisecond
	return r
}

func inlineCluster(t *testing.T, blob string) *integration.Cluster {
	t.Helper()
	cluster, err := integration.NewCluster("prod-east", "velero", "backup-sa", integration.NewInlineCredential(blob))
	require.NoError(t, err)
	return cluster
}

func vaultCluster(t *testing.T, path string) *integration.Cluster {
	t.Helper()
	cluster, err := integration.NewCluster("prod-east", "velero", "backup-sa", integration.NewVaultCredential(path))
	require.NoError(t, err)
	return cluster
}

func TestResolver_InlineValid(t *testing.T) {
	t.Parallel()
	resolver := newTestResolver(t, "")

	blob := base64.StdEncoding.EncodeToString([]byte(validKubeconfig))
	material, err := resolver.Resolve(context.Background(), inlineCluster(t, blob))
	require.NoError(t, err)

	assert.Equal(t, []byte(validKubeconfig), material.Kubeconfig())
}

func TestResolver_InlineNotBase64(t *testing.T) {
	t.Parallel()
	resolver := newTestResolver(t, "")

	_, err := resolver.Resolve(context.Background(), inlineCluster(t, "not-base64!!!"))
	credErr, ok := integration.AsCredentialError(err)
	require.True(t, ok)
	assert.Equal(t, integration.CredentialErrorInvalidFormat, credErr.Kind)
}

func TestResolver_InlineNotKubeconfig(t *testing.T) {
	t.Parallel()
	resolver := newTestResolver(t, "")

	blob := base64.StdEncoding.EncodeToString([]byte("secret-token-value: do-not-echo"))
	_, err := resolver.Resolve(context.Background(), inlineCluster(t, blob))
	credErr, ok := integration.AsCredentialError(err)
	require.True(t, ok)
	assert.Equal(t, integration.CredentialErrorInvalidFormat, credErr.Kind)

	// Raw material must never surface in error text.
	assert.NotContains(t, err.Error(), "do-not-echo")
}

func TestResolver_VaultSecretFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "/v1/secret/data/clusters/prod-east", req.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"data":{"kubeconfig":%q},"metadata":{"version":1}}}`, validKubeconfig)
	}))
	defer srv.Close()

	resolver := newTestResolver(t, srv.URL)
	material, err := resolver.Resolve(context.Background(), vaultCluster(t, "clusters/prod-east"))
	require.NoError(t, err)

	assert.Equal(t, []byte(validKubeconfig), material.Kubeconfig())
}

func TestResolver_VaultSecretMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"errors":[]}`)
	}))
	defer srv.Close()

	resolver := newTestResolver(t, srv.URL)
	_, err := resolver.Resolve(context.Background(), vaultCluster(t, "clusters/prod-east"))
	credErr, ok := integration.AsCredentialError(err)
	require.True(t, ok)
	assert.Equal(t, integration.CredentialErrorMissing, credErr.Kind)
}

func TestResolver_VaultUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"errors":["sealed"]}`)
	}))
	defer srv.Close()

	resolver := newTestResolver(t, srv.URL)
	_, err := resolver.Resolve(context.Background(), vaultCluster(t, "clusters/prod-east"))
	credErr, ok := integration.AsCredentialError(err)
	require.True(t, ok)
	assert.Equal(t, integration.CredentialErrorStoreUnavailable, credErr.Kind)
}

func TestResolver_VaultSecretWithoutKubeconfigField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"data":{"password":"hunter2"},"metadata":{"version":1}}}`)
	}))
	defer srv.Close()

	resolver := newTestResolver(t, srv.URL)
	_, err := resolver.Resolve(context.Background(), vaultCluster(t, "clusters/prod-east"))
	credErr, ok := integration.AsCredentialError(err)
	require.True(t, ok)
	assert.Equal(t, integration.CredentialErrorMissing, credErr.Kind)
	assert.NotContains(t, err.Error(), "hunter2")
}
