package integration

// JobType identifies the kind of automation job to run against a cluster.
type JobType string

const (
	// JobTypeCreate onboards a cluster: service account, RBAC, registration.
	JobTypeCreate JobType = "CREATE"

	// JobTypeUpdateServiceAccount rotates or replaces the cluster's service account.
	JobTypeUpdateServiceAccount JobType = "UPDATE_SERVICE_ACCOUNT"

	// JobTypeValidate verifies connectivity and permissions without mutating
	// the cluster.
	JobTypeValidate JobType = "VALIDATE"

	// JobTypeUnspecified is used when a job type is unknown.
	JobTypeUnspecified JobType = "UNSPECIFIED"
)

// String returns the string representation of the JobType.
func (t JobType) String() string { return string(t) }

// ParseJobType converts a string to a JobType.
func ParseJobType(s string) JobType {
	switch s {
	case "CREATE":
		return JobTypeCreate
	case "UPDATE_SERVICE_ACCOUNT":
		return JobTypeUpdateServiceAccount
	case "VALIDATE":
		return JobTypeValidate
	default:
		return JobTypeUnspecified
	}
}
