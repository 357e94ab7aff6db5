package integration

import (
	"errors"
	"fmt"
)

// CredentialSource identifies where a cluster's connection material comes from.
type CredentialSource string

const (
	// CredentialSourceInline means the kubeconfig is stored base64-encoded on
	// the cluster record itself.
	CredentialSourceInline CredentialSource = "inline"

	// CredentialSourceVault means the kubeconfig is dereferenced from a
	// secret-store path at execution time.
	CredentialSourceVault CredentialSource = "vault"

	// CredentialSourceNone means no credential source has been set.
	CredentialSourceNone CredentialSource = "none"
)

// CredentialRef is a tagged reference to a cluster's connection material.
// Exactly one of the inline blob or the vault path may be set; the invariant
// is enforced by Validate and checked again at resolution time.
type CredentialRef struct {
	inlineBlob string
	vaultPath  string
}

// NewInlineCredential creates a reference to base64-encoded inline material.
func NewInlineCredential(blob string) CredentialRef {
	return CredentialRef{inlineBlob: blob}
}

// NewVaultCredential creates a reference to material stored at a vault path.
func NewVaultCredential(path string) CredentialRef {
	return CredentialRef{vaultPath: path}
}

// ReconstructCredentialRef recreates a CredentialRef from persisted columns.
// This should only be used by repositories when loading from the DB.
func ReconstructCredentialRef(inlineBlob, vaultPath string) CredentialRef {
	return CredentialRef{inlineBlob: inlineBlob, vaultPath: vaultPath}
}

// Source returns which credential source is populated.
func (c CredentialRef) Source() CredentialSource {
	switch {
	case c.inlineBlob != "":
		return CredentialSourceInline
	case c.vaultPath != "":
		return CredentialSourceVault
	default:
		return CredentialSourceNone
	}
}

// InlineBlob returns the inline encoded material and whether it is set.
func (c CredentialRef) InlineBlob() (string, bool) {
	return c.inlineBlob, c.inlineBlob != ""
}

// VaultPath returns the secret-store path and whether it is set.
func (c CredentialRef) VaultPath() (string, bool) {
	return c.vaultPath, c.vaultPath != ""
}

// Validate enforces the mutual-exclusion invariant on credential sources.
func (c CredentialRef) Validate() error {
	if c.inlineBlob != "" && c.vaultPath != "" {
		return NewValidationError("only one of kubeconfig or kubeconfig_vault_path may be provided")
	}
	if c.inlineBlob == "" && c.vaultPath == "" {
		return NewValidationError("either kubeconfig or kubeconfig_vault_path must be provided")
	}
	return nil
}

// String never exposes inline material. The vault path is safe to log.
func (c CredentialRef) String() string {
	switch c.Source() {
	case CredentialSourceInline:
		return "inline:[REDACTED]"
	case CredentialSourceVault:
		return "vault:" + c.vaultPath
	default:
		return "none"
	}
}

// CredentialMaterial holds resolved connection material. It deliberately
// stringifies to a redacted marker so it cannot leak through logging or
// error formatting.
type CredentialMaterial struct {
	kubeconfig []byte
}

// NewCredentialMaterial wraps a resolved kubeconfig.
func NewCredentialMaterial(kubeconfig []byte) CredentialMaterial {
	return CredentialMaterial{kubeconfig: kubeconfig}
}

// Kubeconfig returns the raw connection material.
func (m CredentialMaterial) Kubeconfig() []byte { return m.kubeconfig }

func (m CredentialMaterial) String() string { return "[REDACTED]" }

// CredentialErrorKind classifies credential resolution failures.
type CredentialErrorKind string

const (
	// CredentialErrorMissing means no material was found for the reference.
	CredentialErrorMissing CredentialErrorKind = "MISSING"

	// CredentialErrorInvalidFormat means material was found but is not
	// well-formed connection material.
	CredentialErrorInvalidFormat CredentialErrorKind = "INVALID_FORMAT"

	// CredentialErrorStoreUnavailable means the secret store could not be
	// reached after bounded retries.
	CredentialErrorStoreUnavailable CredentialErrorKind = "SECRET_STORE_UNAVAILABLE"
)

// CredentialError describes a credential resolution failure. The reason must
// never contain raw credential material.
type CredentialError struct {
	Kind   CredentialErrorKind
	Reason string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential resolution failed (%s): %s", e.Kind, e.Reason)
}

// NewCredentialError creates a classified credential resolution error.
func NewCredentialError(kind CredentialErrorKind, reason string) *CredentialError {
	return &CredentialError{Kind: kind, Reason: reason}
}

// AsCredentialError unwraps err into a CredentialError if possible.
func AsCredentialError(err error) (*CredentialError, bool) {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
