package integration

// ClusterStatus represents the integration state of a managed cluster as a
// backup target.
type ClusterStatus string

const (
	// ClusterStatusPending indicates a cluster record exists but no execution
	// has reached a terminal outcome yet.
	ClusterStatusPending ClusterStatus = "PENDING"

	// ClusterStatusConnected indicates the last terminal execution succeeded
	// and the cluster is usable by the backup platform.
	ClusterStatusConnected ClusterStatus = "CONNECTED"

	// ClusterStatusError indicates the last terminal execution failed.
	ClusterStatusError ClusterStatus = "ERROR"

	// ClusterStatusUnspecified is used when a cluster status is unknown.
	ClusterStatusUnspecified ClusterStatus = "UNSPECIFIED"
)

// String returns the string representation of the ClusterStatus.
func (s ClusterStatus) String() string { return string(s) }

// ParseClusterStatus converts a string to a ClusterStatus.
func ParseClusterStatus(s string) ClusterStatus {
	switch s {
	case "PENDING":
		return ClusterStatusPending
	case "CONNECTED":
		return ClusterStatusConnected
	case "ERROR":
		return ClusterStatusError
	default:
		return ClusterStatusUnspecified
	}
}
