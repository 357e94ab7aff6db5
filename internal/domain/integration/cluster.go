package integration

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kubernetes object name rules, matching what the onboarding playbooks accept.
var k8sNameRE = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$`)

const (
	minNameLength = 3
	maxNameLength = 63
)

// ValidateName checks a cluster, namespace, or service account name against
// the naming rules enforced before any state mutation.
func ValidateName(field, v string) error {
	if len(v) < minNameLength || len(v) > maxNameLength {
		return NewValidationError(fmt.Sprintf("%s must be between %d and %d characters", field, minNameLength, maxNameLength))
	}
	if strings.Contains(v, "--") {
		return NewValidationError(fmt.Sprintf("%s cannot contain consecutive hyphens", field))
	}
	if !k8sNameRE.MatchString(v) {
		return NewValidationError(fmt.Sprintf("%s must start and end with an alphanumeric character and contain only lowercase letters, numbers, and hyphens", field))
	}
	return nil
}

// Cluster is a target Kubernetes environment registered with the backup
// platform. It owns its executions by reference and is only mutated by the
// orchestrator while an active execution exists for it.
type Cluster struct {
	id             int64
	name           string
	namespace      string
	serviceAccount string
	credential     CredentialRef
	status         ClusterStatus
	createdAt      time.Time
	updatedAt      time.Time
}

// NewCluster creates a cluster record for a first onboarding request after
// validating naming rules and the credential-source invariant.
func NewCluster(name, namespace, serviceAccount string, credential CredentialRef) (*Cluster, error) {
	if err := ValidateName("cluster name", name); err != nil {
		return nil, err
	}
	if err := ValidateName("namespace", namespace); err != nil {
		return nil, err
	}
	if err := ValidateName("service account", serviceAccount); err != nil {
		return nil, err
	}
	if err := credential.Validate(); err != nil {
		return nil, err
	}

	return &Cluster{
		name:           name,
		namespace:      namespace,
		serviceAccount: serviceAccount,
		credential:     credential,
		status:         ClusterStatusPending,
	}, nil
}

// ReconstructCluster recreates a Cluster from stored fields, bypassing
// creation invariants. This should only be used by repositories when loading
// from the DB.
func ReconstructCluster(
	id int64,
	name, namespace, serviceAccount string,
	credential CredentialRef,
	status ClusterStatus,
	createdAt, updatedAt time.Time,
) *Cluster {
	return &Cluster{
		id:             id,
		name:           name,
		namespace:      namespace,
		serviceAccount: serviceAccount,
		credential:     credential,
		status:         status,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the storage identity of the cluster. Zero until persisted.
func (c *Cluster) ID() int64 { return c.id }

// Name returns the unique cluster name.
func (c *Cluster) Name() string { return c.name }

// Namespace returns the namespace the platform operates in on this cluster.
func (c *Cluster) Namespace() string { return c.namespace }

// ServiceAccount returns the service account used for cluster access.
func (c *Cluster) ServiceAccount() string { return c.serviceAccount }

// Credential returns the cluster's credential reference.
func (c *Cluster) Credential() CredentialRef { return c.credential }

// Status returns the cluster's current integration status.
func (c *Cluster) Status() ClusterStatus { return c.status }

// CreatedAt returns when the cluster was first onboarded.
func (c *Cluster) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last modification time.
func (c *Cluster) UpdatedAt() time.Time { return c.updatedAt }

// SetID attaches the storage identity after the first insert.
func (c *Cluster) SetID(id int64) { c.id = id }

// SetStatus records a new integration status. Cluster status has no strict
// state machine; the orchestrator only mutates it on terminal execution
// outcomes.
func (c *Cluster) SetStatus(status ClusterStatus) { c.status = status }

// Supersede replaces the cluster's mutable configuration on a force
// onboarding. Execution history is preserved; only the record itself is
// rewritten.
func (c *Cluster) Supersede(namespace, serviceAccount string, credential CredentialRef) error {
	if err := ValidateName("namespace", namespace); err != nil {
		return err
	}
	if err := ValidateName("service account", serviceAccount); err != nil {
		return err
	}
	if err := credential.Validate(); err != nil {
		return err
	}

	c.namespace = namespace
	c.serviceAccount = serviceAccount
	c.credential = credential
	c.status = ClusterStatusPending
	return nil
}

// ApplyServiceAccount updates the service account ahead of an
// UPDATE_SERVICE_ACCOUNT execution.
func (c *Cluster) ApplyServiceAccount(serviceAccount string) error {
	if err := ValidateName("service account", serviceAccount); err != nil {
		return err
	}
	c.serviceAccount = serviceAccount
	return nil
}
