package health

import "os"

// Reason explains why a repository is unhealthy.
type Reason string

const (
	// ReasonPathMissing means the repository's main path does not exist on disk.
	ReasonPathMissing Reason = "path_missing"
)

// Check is the health result for one repository. Reason is set only
// when Healthy is false.
type Check struct {
	Healthy bool   `json:"healthy"`
	Reason  Reason `json:"reason,omitempty"`
}

// CheckPath reports whether path exists on disk at call time.
//
// A missing path is a normal, expected result, not a failure, so no error
// is returned. Stat failures (permission errors etc.) are not distinguished
// from "missing": the observable consequence is the same either way, the
// repository is unusable.
func CheckPath(path string) Check {
	if _, err := os.Stat(path); err != nil {
		return Check{Healthy: false, Reason: ReasonPathMissing}
	}
	return Check{Healthy: true}
}
