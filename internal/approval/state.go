package approval

import (
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

type Action string

const (
	ActionSubmit    Action = "submit"
	ActionReview    Action = "review"
	ActionApprove   Action = "approve"
	ActionAuthorize Action = "authorize"
	ActionPost      Action = "post"
	ActionReject    Action = "reject"
	ActionCancel    Action = "cancel"
)

var Actions = []Action{
	ActionSubmit,
	ActionReview,
	ActionApprove,
	ActionAuthorize,
	ActionPost,
	ActionReject,
	ActionCancel,
}

type transitionKey struct {
	from   payment.State
	action Action
}

type rule struct {
	// ownerOrManage replaces the capability check with "owner or manage".
	ownerOrManage bool
	capability    permission.Capability
	next          func(p *payment.Payment) payment.State
}

func to(s payment.State) func(*payment.Payment) payment.State {
	return func(*payment.Payment) payment.State { return s }
}

var transitions = buildTransitions()

func buildTransitions() map[transitionKey]rule {
	t := map[transitionKey]rule{
		{payment.StateDraft, ActionSubmit}: {
			ownerOrManage: true,
			next:          to(payment.StateUnderReview),
		},
		{payment.StateUnderReview, ActionReview}: {
			capability: permission.CapabilityReview,
			next: func(p *payment.Payment) payment.State {
				if p.Direction == payment.DirectionInbound {
					return payment.StateApproved
				}
				return payment.StateForApproval
			},
		},
		{payment.StateForApproval, ActionApprove}: {
			capability: permission.CapabilityApprove,
			next: func(p *payment.Payment) payment.State {
				if p.RequiresAuthorization {
					return payment.StateForAuthorization
				}
				return payment.StateApproved
			},
		},
		{payment.StateForAuthorization, ActionAuthorize}: {
			capability: permission.CapabilityAuthorize,
			next:       to(payment.StateApproved),
		},
		{payment.StateApproved, ActionPost}: {
			capability: permission.CapabilityPost,
			next:       to(payment.StatePosted),
		},
		{payment.StateUnderReview, ActionReject}: {
			capability: permission.CapabilityReview,
			next:       to(payment.StateDraft),
		},
		{payment.StateForApproval, ActionReject}: {
			capability: permission.CapabilityApprove,
			next:       to(payment.StateDraft),
		},
		{payment.StateForAuthorization, ActionReject}: {
			capability: permission.CapabilityAuthorize,
			next:       to(payment.StateDraft),
		},
	}

	for _, s := range payment.States {
		if s.IsTerminal() {
			continue
		}
		t[transitionKey{s, ActionCancel}] = rule{
			capability: permission.CapabilityManage,
			next:       to(payment.StateCancelled),
		}
	}
	return t
}

// Allowed reports whether action is legal from state, ignoring actor and amount.
func Allowed(from payment.State, action Action) bool {
	_, ok := transitions[transitionKey{from, action}]
	return ok
}

// StageCapability is the capability of the role that acts on a payment in the given stage.
func StageCapability(s payment.State) (permission.Capability, bool) {
	switch s {
	case payment.StateUnderReview:
		return permission.CapabilityReview, true
	case payment.StateForApproval:
		return permission.CapabilityApprove, true
	case payment.StateForAuthorization:
		return permission.CapabilityAuthorize, true
	default:
		return "", false
	}
}

func (a Action) Valid() bool {
	for _, known := range Actions {
		if a == known {
			return true
		}
	}
	return false
}
