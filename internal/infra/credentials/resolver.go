// Package credentials resolves cluster credential references into usable
// connection material. Inline references are decoded and validated locally;
// vault references are dereferenced from a KV v2 secret store with bounded
// retries. Raw material is never logged and never appears in error text.
package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	vault "github.com/hashicorp/vault/api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/pkg/common/logger"
)

// kubeconfigField is the key the onboarding secrets store material under.
const kubeconfigField = "kubeconfig"

var _ integration.CredentialResolver = (*Resolver)(nil)

// Resolver implements integration.CredentialResolver. It handles both inline
// (base64-encoded on the cluster record) and vault-referenced material.
type Resolver struct {
	vault *vault.Client
	mount string

	retryMaxElapsed time.Duration

	logger *logger.Logger
	tracer trace.Tracer
}

// NewResolver creates a resolver backed by the given vault client. The mount
// names the KV v2 secrets engine holding cluster kubeconfigs. The vault client
// may be nil when only inline credentials are in use.
func NewResolver(client *vault.Client, mount string, log *logger.Logger, tracer trace.Tracer) *Resolver {
	return &Resolver{
		vault:           client,
		mount:           mount,
		retryMaxElapsed: 15 * time.Second,
		logger:          log.With("component", "credential_resolver"),
		tracer:          tracer,
	}
}

// Resolve returns connection material for the cluster's credential source.
// Failures are classified as *integration.CredentialError; the reason text
// never contains raw material.
func (r *Resolver) Resolve(ctx context.Context, cluster *integration.Cluster) (integration.CredentialMaterial, error) {
	ctx, span := r.tracer.Start(ctx, "credentials.resolve", trace.WithAttributes(
		attribute.String("cluster_name", cluster.Name()),
		attribute.String("credential_source", string(cluster.Credential().Source())),
	))
	defer span.End()

	var (
		material integration.CredentialMaterial
		err      error
	)
	switch cluster.Credential().Source() {
	case integration.CredentialSourceInline:
		material, err = r.resolveInline(cluster)
	case integration.CredentialSourceVault:
		material, err = r.resolveVault(ctx, cluster)
	default:
		err = integration.NewCredentialError(integration.CredentialErrorMissing, "cluster has no credential source")
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "credential resolution failed")
		r.logger.Warn(ctx, "credential resolution failed",
			"cluster_name", cluster.Name(),
			"credential_source", string(cluster.Credential().Source()),
			"err", err)
		return integration.CredentialMaterial{}, err
	}

	span.AddEvent("credential_resolved")
	return material, nil
}

func (r *Resolver) resolveInline(cluster *integration.Cluster) (integration.CredentialMaterial, error) {
	blob, ok := cluster.Credential().InlineBlob()
	if !ok {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorMissing, "inline credential reference is empty")
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorInvalidFormat, "inline credential is not valid base64")
	}

	if err := validateKubeconfig(raw); err != nil {
		return integration.CredentialMaterial{}, err
	}
	return integration.NewCredentialMaterial(raw), nil
}

func (r *Resolver) resolveVault(ctx context.Context, cluster *integration.Cluster) (integration.CredentialMaterial, error) {
	if r.vault == nil {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorStoreUnavailable, "no secret store configured")
	}

	path, ok := cluster.Credential().VaultPath()
	if !ok {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorMissing, "vault credential reference is empty")
	}

	var secret *vault.KVSecret

	operation := func() error {
		var err error
		secret, err = r.vault.KVv2(r.mount).Get(ctx, path)
		if err != nil {
			if errors.Is(err, vault.ErrSecretNotFound) {
				// Retrying will not make the secret appear.
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxElapsedTime = r.retryMaxElapsed

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return integration.CredentialMaterial{}, integration.NewCredentialError(
				integration.CredentialErrorMissing, fmt.Sprintf("no secret at path %q", path))
		}
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorStoreUnavailable, "secret store unreachable after retries")
	}

	value, ok := secret.Data[kubeconfigField]
	if !ok {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorMissing, fmt.Sprintf("secret at %q has no %s field", path, kubeconfigField))
	}

	text, ok := value.(string)
	if !ok {
		return integration.CredentialMaterial{}, integration.NewCredentialError(
			integration.CredentialErrorInvalidFormat, fmt.Sprintf("secret %s field is not a string", kubeconfigField))
	}

	raw := []byte(text)
	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
		// Secrets may hold the kubeconfig either raw or base64-encoded.
		raw = decoded
	}

	if err := validateKubeconfig(raw); err != nil {
		return integration.CredentialMaterial{}, err
	}
	return integration.NewCredentialMaterial(raw), nil
}

// validateKubeconfig checks that material parses as a kubeconfig document. The
// parse error is deliberately not propagated since it can quote the input.
func validateKubeconfig(raw []byte) error {
	if len(raw) == 0 {
		return integration.NewCredentialError(integration.CredentialErrorMissing, "credential material is empty")
	}

	cfg, err := clientcmd.Load(raw)
	if err != nil {
		return integration.NewCredentialError(integration.CredentialErrorInvalidFormat, "credential material is not a valid kubeconfig")
	}
	if len(cfg.Clusters) == 0 {
		return integration.NewCredentialError(integration.CredentialErrorInvalidFormat, "kubeconfig defines no clusters")
	}
	return nil
}
