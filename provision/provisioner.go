// Package provision applies a CreateResourcePolicy before repository operations and makes resource
// creation idempotent: losing a creation race to another caller counts as success.
package provision

import (
	"context"
	"fmt"
	log "log/slog"
	"sync/atomic"

	repositories "github.com/cesarpv27/Azure.Repositories-sub001"
	"github.com/cesarpv27/Azure.Repositories-sub001/azerrors"
)

// Provisioner holds the policy of one repository instance and its first-time latch.
// The latch is per instance, not per resource name: the first gated operation of the instance closes it
// whatever resource it touched and whatever its outcome.
type Provisioner struct {
	policy    repositories.CreateResourcePolicy
	latchDone atomic.Bool
}

// NewProvisioner returns a Provisioner for policy with the latch open.
func NewProvisioner(policy repositories.CreateResourcePolicy) *Provisioner {
	return &Provisioner{
		policy: policy,
	}
}

// Policy returns the configured policy.
func (p *Provisioner) Policy() repositories.CreateResourcePolicy {
	return p.policy
}

// IsFirstTime reports whether no gated operation has run yet.
func (p *Provisioner) IsFirstTime() bool {
	return !p.latchDone.Load()
}

// ShouldCreate reports whether the current gated operation must attempt creation, then closes the latch.
// Under Never the latch is left untouched.
func (p *Provisioner) ShouldCreate() bool {
	switch p.policy {
	case repositories.Always:
		p.latchDone.Store(true)
		return true
	case repositories.OnlyFirstTime:
		return p.latchDone.CompareAndSwap(false, true)
	default:
		return false
	}
}

// EnsureResource calls create and returns its handle. When create fails with an error isAlreadyExists
// accepts, get is called and its handle returned instead. Any other create error is returned unchanged
// and get is not called.
func EnsureResource[H any](ctx context.Context, create func(ctx context.Context) (H, error),
	get func(ctx context.Context) (H, error), isAlreadyExists func(error) bool) (H, error) {
	var zero H
	if create == nil {
		return zero, repositories.NewNilArgumentError("create")
	}
	if get == nil {
		return zero, repositories.NewNilArgumentError("get")
	}
	if isAlreadyExists == nil {
		return zero, repositories.NewNilArgumentError("isAlreadyExists")
	}
	h, err := create(ctx)
	if err == nil {
		return h, nil
	}
	if !isAlreadyExists(err) {
		return zero, err
	}
	log.Debug(fmt.Sprintf("resource already exists, fetching it, details: %v", err))
	return get(ctx)
}

// Provision runs EnsureResource when p's policy gates creation for this operation. ok is false when
// creation was not attempted, the caller then works against the resource as is.
func Provision[H any](ctx context.Context, p *Provisioner, create func(ctx context.Context) (H, error),
	get func(ctx context.Context) (H, error), isAlreadyExists func(error) bool) (h H, ok bool, err error) {
	if p == nil || !p.ShouldCreate() {
		return h, false, nil
	}
	h, err = EnsureResource(ctx, create, get, isAlreadyExists)
	return h, true, err
}

// AlreadyExists returns a predicate accepting errors c classifies as target.
func AlreadyExists(c *azerrors.Classifier, target azerrors.AzError) func(error) bool {
	return func(err error) bool {
		return c.Matches(err, target)
	}
}
