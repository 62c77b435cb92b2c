package repositories

import (
	"fmt"
	"time"
)

// CreateResourcePolicy governs auto-provisioning of the backing resource (table, queue, container)
// before a repository operation.
type CreateResourcePolicy int

const (
	// Never attempts creation, the resource is expected to exist.
	Never CreateResourcePolicy = iota
	// OnlyFirstTime attempts creation on the first policy-gated operation of a repository instance only.
	OnlyFirstTime
	// Always attempts creation before every policy-gated operation.
	Always
)

func (p CreateResourcePolicy) String() string {
	switch p {
	case Never:
		return "Never"
	case OnlyFirstTime:
		return "OnlyFirstTime"
	case Always:
		return "Always"
	default:
		return fmt.Sprintf("CreateResourcePolicy(%d)", int(p))
	}
}

// ParseCreateResourcePolicy converts a policy name to its CreateResourcePolicy value.
func ParseCreateResourcePolicy(s string) (CreateResourcePolicy, error) {
	switch s {
	case "", "Never", "never":
		return Never, nil
	case "OnlyFirstTime", "only_first_time", "onlyfirsttime":
		return OnlyFirstTime, nil
	case "Always", "always":
		return Always, nil
	}
	return Never, NewInvalidArgumentError("create resource policy", fmt.Sprintf("'%s' is not one of Never, OnlyFirstTime, Always", s))
}

// RetryMode selects the backoff shape used between retries.
type RetryMode int

const (
	// Exponential doubles the delay on each retry, capped at MaxDelay.
	Exponential RetryMode = iota
	// Fixed uses the same delay between every retry.
	Fixed
)

// RetryOptions holds the retry policy applied to single network calls made by the repositories.
type RetryOptions struct {
	// Mode is the backoff shape.
	Mode RetryMode `json:"mode"`
	// Delay is the initial (Exponential) or constant (Fixed) wait between attempts.
	Delay time.Duration `json:"delay"`
	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration `json:"max_delay"`
	// MaxRetries is the number of retries after the first attempt. 0 disables retrying.
	MaxRetries uint64 `json:"max_retries"`
	// NetworkTimeout bounds each individual attempt.
	NetworkTimeout time.Duration `json:"network_timeout"`
}

// DefaultRetryOptions returns exponential backoff starting at 1s, capped at 30s, 5 retries & 30s per attempt.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		Mode:           Exponential,
		Delay:          time.Duration(1 * time.Second),
		MaxDelay:       time.Duration(30 * time.Second),
		MaxRetries:     5,
		NetworkTimeout: time.Duration(30 * time.Second),
	}
}

// RepositoryOptions are the construction parameters common to all repositories.
type RepositoryOptions struct {
	// CreateResourcePolicy governs auto-creation of the backing resource.
	CreateResourcePolicy CreateResourcePolicy `json:"create_resource_policy"`
	// Retry is the retry policy for single network calls.
	Retry RetryOptions `json:"retry"`
}

// DefaultRepositoryOptions returns OnlyFirstTime provisioning with the default retry policy.
func DefaultRepositoryOptions() RepositoryOptions {
	return RepositoryOptions{
		CreateResourcePolicy: OnlyFirstTime,
		Retry:                DefaultRetryOptions(),
	}
}

// IsEmpty returns true if retry options were not set at all.
func (ro RetryOptions) IsEmpty() bool {
	return ro.Delay == 0 && ro.MaxDelay == 0 && ro.MaxRetries == 0 && ro.NetworkTimeout == 0
}

// Normalize fills in unset fields with the default values.
func (ro RetryOptions) Normalize() RetryOptions {
	d := DefaultRetryOptions()
	if ro.IsEmpty() {
		return d
	}
	if ro.Delay <= 0 {
		ro.Delay = d.Delay
	}
	if ro.MaxDelay < ro.Delay {
		ro.MaxDelay = ro.Delay
	}
	return ro
}
