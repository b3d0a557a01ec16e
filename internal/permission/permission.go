package permission

import (
	"context"
	"errors"
	"sync"
)

// Capability is a permission name held by an actor.
type Capability string

const (
	CapabilityReview    Capability = "review"
	CapabilityApprove   Capability = "approve"
	CapabilityAuthorize Capability = "authorize"
	CapabilityPost      Capability = "post"
	CapabilityManage    Capability = "manage"
)

var All = []Capability{
	CapabilityReview,
	CapabilityApprove,
	CapabilityAuthorize,
	CapabilityPost,
	CapabilityManage,
}

func (c Capability) Valid() bool {
	for _, known := range All {
		if c == known {
			return true
		}
	}
	return false
}

var ErrUnknownCapability = errors.New("unknown capability")

// Resolver answers capability lookups. An error means the lookup itself failed,
// never that the actor lacks the capability.
type Resolver interface {
	HasCapability(ctx context.Context, actorID int64, capability Capability) (bool, error)
}

// StaticResolver is an in-memory Resolver for development and tests.
type StaticResolver struct {
	mu     sync.RWMutex
	grants map[int64]map[Capability]struct{}
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{grants: make(map[int64]map[Capability]struct{})}
}

func (r *StaticResolver) Grant(actorID int64, capabilities ...Capability) *StaticResolver {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.grants[actorID]
	if !ok {
		set = make(map[Capability]struct{})
		r.grants[actorID] = set
	}
	for _, c := range capabilities {
		set[c] = struct{}{}
	}
	return r
}

func (r *StaticResolver) Revoke(actorID int64, capability Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.grants[actorID], capability)
}

func (r *StaticResolver) HasCapability(_ context.Context, actorID int64, capability Capability) (bool, error) {
	if !capability.Valid() {
		return false, ErrUnknownCapability
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.grants[actorID][capability]
	return ok, nil
}
