package integration

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialRef_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, NewInlineCredential("blob").Validate())
	assert.NoError(t, NewVaultCredential("clusters/prod-east").Validate())

	err := ReconstructCredentialRef("blob", "clusters/prod-east").Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	err = (CredentialRef{}).Validate()
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCredentialRef_Source(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CredentialSourceInline, NewInlineCredential("blob").Source())
	assert.Equal(t, CredentialSourceVault, NewVaultCredential("path").Source())
	assert.Equal(t, CredentialSourceNone, CredentialRef{}.Source())
}

func TestCredentialRef_StringRedactsInlineMaterial(t *testing.T) {
	t.Parallel()

	ref := NewInlineCredential("super-secret-kubeconfig")
	assert.NotContains(t, ref.String(), "super-secret-kubeconfig")
	assert.Contains(t, ref.String(), "REDACTED")

	// Vault paths carry no material and are safe to log.
	assert.Equal(t, "vault:clusters/prod-east", NewVaultCredential("clusters/prod-east").String())
}

func TestCredentialMaterial_StringRedacts(t *testing.T) {
	t.Parallel()

	material := NewCredentialMaterial([]byte("apiVersion: v1"))
	assert.Equal(t, "[REDACTED]", material.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", material))
	assert.Equal(t, []byte("apiVersion: v1"), material.Kubeconfig())
}

func TestCredentialError(t *testing.T) {
	t.Parallel()

	err := NewCredentialError(CredentialErrorMissing, "no secret at path")

	credErr, ok := AsCredentialError(fmt.Errorf("resolving: %w", err))
	require.True(t, ok)
	assert.Equal(t, CredentialErrorMissing, credErr.Kind)
	assert.Equal(t, "no secret at path", credErr.Reason)

	_, ok = AsCredentialError(errors.New("plain"))
	assert.False(t, ok)
}
