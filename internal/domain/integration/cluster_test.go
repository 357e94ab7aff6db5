package integration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "valid simple name", value: "prod-east", wantErr: false},
		{name: "valid minimum length", value: "abc", wantErr: false},
		{name: "valid with digits", value: "cluster-01", wantErr: false},
		{name: "too short", value: "ab", wantErr: true},
		{name: "too long", value: strings.Repeat("a", 64), wantErr: true},
		{name: "maximum length", value: strings.Repeat("a", 63), wantErr: false},
		{name: "consecutive hyphens", value: "prod--east", wantErr: true},
		{name: "leading hyphen", value: "-prod", wantErr: true},
		{name: "trailing hyphen", value: "prod-", wantErr: true},
		{name: "uppercase rejected", value: "Prod-East", wantErr: true},
		{name: "underscore rejected", value: "prod_east", wantErr: true},
		{name: "dot rejected", value: "prod.east", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateName("cluster name", tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewCluster(t *testing.T) {
	t.Parallel()

	cluster, err := NewCluster("prod-east", "velero", "backup-sa", NewInlineCredential("blob"))
	require.NoError(t, err)

	assert.Equal(t, "prod-east", cluster.Name())
	assert.Equal(t, "velero", cluster.Namespace())
	assert.Equal(t, "backup-sa", cluster.ServiceAccount())
	assert.Equal(t, ClusterStatusPending, cluster.Status())
	assert.Equal(t, CredentialSourceInline, cluster.Credential().Source())
}

func TestNewCluster_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		clusterName    string
		namespace      string
		serviceAccount string
		credential     CredentialRef
	}{
		{
			name:           "bad cluster name",
			clusterName:    "Bad--Name",
			namespace:      "velero",
			serviceAccount: "backup-sa",
			credential:     NewInlineCredential("blob"),
		},
		{
			name:           "bad namespace",
			clusterName:    "prod-east",
			namespace:      "ns",
			serviceAccount: "backup-sa",
			credential:     NewInlineCredential("blob"),
		},
		{
			name:           "bad service account",
			clusterName:    "prod-east",
			namespace:      "velero",
			serviceAccount: "sa_",
			credential:     NewInlineCredential("blob"),
		},
		{
			name:           "no credential source",
			clusterName:    "prod-east",
			namespace:      "velero",
			serviceAccount: "backup-sa",
			credential:     CredentialRef{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewCluster(tt.clusterName, tt.namespace, tt.serviceAccount, tt.credential)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestCluster_Supersede(t *testing.T) {
	t.Parallel()

	cluster, err := NewCluster("prod-east", "velero", "backup-sa", NewInlineCredential("blob"))
	require.NoError(t, err)
	cluster.SetStatus(ClusterStatusConnected)

	require.NoError(t, cluster.Supersede("backups", "new-sa", NewVaultCredential("clusters/prod-east")))

	assert.Equal(t, "prod-east", cluster.Name(), "identity survives supersession")
	assert.Equal(t, "backups", cluster.Namespace())
	assert.Equal(t, "new-sa", cluster.ServiceAccount())
	assert.Equal(t, CredentialSourceVault, cluster.Credential().Source())
	assert.Equal(t, ClusterStatusPending, cluster.Status())
}

func TestCluster_Supersede_Invalid(t *testing.T) {
	t.Parallel()

	cluster, err := NewCluster("prod-east", "velero", "backup-sa", NewInlineCredential("blob"))
	require.NoError(t, err)

	err = cluster.Supersede("velero", "backup-sa", CredentialRef{})
	require.Error(t, err)
	assert.Equal(t, "velero", cluster.Namespace(), "failed supersession must not mutate the record")
}
