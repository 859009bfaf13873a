package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/mhrncir/parlsync/internal/config"
)

// Default retry policy applied where the configuration is silent.
const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 5 * time.Second
	DefaultConcurrency    = 1
)

// Policy holds the retry and concurrency settings for one job type.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Concurrency    int
}

// Policies maps job type to its policy.
type Policies map[string]Policy

// PoliciesFromConfig builds Policies from the per-job-type configuration.
func PoliciesFromConfig(jobs map[string]config.JobPolicy) Policies {
	policies := make(Policies, len(jobs))
	for jobType, p := range jobs {
		policies[jobType] = Policy{
			MaxAttempts:    p.MaxAttempts,
			InitialBackoff: p.InitialBackoff,
			Concurrency:    p.Concurrency,
		}
	}
	return policies
}

// For returns the policy for a job type, filling unset fields with
// defaults.
func (p Policies) For(jobType string) Policy {
	policy := p[jobType]

	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultMaxAttempts
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = DefaultInitialBackoff
	}
	if policy.Concurrency <= 0 {
		policy.Concurrency = DefaultConcurrency
	}

	return policy
}

// BackoffFor returns the delay before the given retry. attempt counts
// completed attempts, so the first retry (attempt=1) waits the initial
// interval and each further retry doubles it.
func (p Policy) BackoffFor(attempt int) time.Duration {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialBackoff
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = 1 * time.Hour
	bo.MaxElapsedTime = 0

	delay := bo.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = bo.NextBackOff()
	}
	return delay
}
