package domain

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Job types. Each type has its own queue and its own retry policy.
const (
	JobTypeVotes  = "ingest_votes"
	JobTypeBills  = "ingest_bills"
	JobTypeScores = "compute_scores"
)

// JobTypes lists every known job type, in scheduling order.
var JobTypes = []string{JobTypeVotes, JobTypeBills, JobTypeScores}

// IsKnownJobType reports whether jobType names a registered job.
func IsKnownJobType(jobType string) bool {
	for _, t := range JobTypes {
		if t == jobType {
			return true
		}
	}
	return false
}
