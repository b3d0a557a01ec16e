package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/frahmantamala/payment-approval/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-approval/internal/core/datamodel/workflow"
	"github.com/frahmantamala/payment-approval/internal/core/events"
	"github.com/frahmantamala/payment-approval/internal/history"
	"github.com/frahmantamala/payment-approval/internal/permission"
)

const autoPostComment = "auto-post on approval"

type ServiceAPI interface {
	Create(ctx context.Context, actorID int64, dto CreatePaymentDTO) (*payment.Payment, error)
	Get(ctx context.Context, id int64) (*payment.Payment, error)
	GetByToken(ctx context.Context, token string) (*payment.Payment, error)
	Submit(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Review(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Approve(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Authorize(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Post(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Reject(ctx context.Context, id, actorID int64, reason string) (*Result, error)
	Cancel(ctx context.Context, id, actorID int64, comment string) (*Result, error)
	Do(ctx context.Context, action Action, id, actorID int64, comment string) (*Result, error)
	History(ctx context.Context, id int64) ([]*workflow.HistoryEntry, error)
}

type Service struct {
	repo     Repository
	ledger   history.Ledger
	resolver permission.Resolver
	policy   *Policy
	poster   Poster
	bus      EventPublisher
	voucher  VoucherFormatter
	hooks    []TransitionHook
	settings atomic.Pointer[Settings]
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

func WithHooks(hooks ...TransitionHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hooks...) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithVoucherPrefix(prefix string) Option {
	return func(s *Service) { s.voucher = VoucherFormatter{Prefix: prefix} }
}

// NewService wires the state machine. poster and bus may be nil.
func NewService(repo Repository, ledger history.Ledger, resolver permission.Resolver, policy *Policy,
	poster Poster, bus EventPublisher, cfg Settings, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		ledger:   ledger,
		resolver: resolver,
		policy:   policy,
		poster:   poster,
		bus:      bus,
		voucher:  VoucherFormatter{},
		now:      time.Now,
		logger:   logger,
	}
	s.settings.Store(&cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpdateSettings applies to transitions started after the call.
func (s *Service) UpdateSettings(cfg Settings) {
	s.settings.Store(&cfg)
	s.logger.Info("approval settings reloaded", "auto_post_on_approval", cfg.AutoPostOnApproval)
}

func (s *Service) Create(ctx context.Context, actorID int64, dto CreatePaymentDTO) (*payment.Payment, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	amount := dto.ParsedAmount()
	curr := strings.ToUpper(strings.TrimSpace(dto.Currency))
	dir := payment.Direction(dto.Direction)

	requiresAuth, err := s.policy.RequiresAuthorization(ctx, amount, curr, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	p := &payment.Payment{
		Amount:                amount,
		Currency:              curr,
		Direction:             dir,
		PartnerRef:            strings.TrimSpace(dto.PartnerRef),
		JournalRef:            strings.TrimSpace(dto.JournalRef),
		Memo:                  dto.Memo,
		LifecycleState:        payment.StateDraft,
		Version:               1,
		RequiresAuthorization: requiresAuth,
		CreatedBy:             actorID,
		VerificationToken:     uuid.NewString(),
		CreatedAt:             s.now().UTC(),
	}

	if err := s.repo.Create(ctx, p, s.voucher.Format); err != nil {
		s.logger.Error("failed to create payment", "error", err, "actor_id", actorID)
		return nil, err
	}

	s.logger.Info("payment created",
		"payment_id", p.ID,
		"voucher_number", deref(p.VoucherNumber),
		"amount", p.Amount.String(),
		"currency", p.Currency,
		"direction", p.Direction,
		"requires_authorization", p.RequiresAuthorization,
		"actor_id", actorID)

	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*payment.Payment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByToken(ctx context.Context, token string) (*payment.Payment, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrPaymentNotFound
	}
	return s.repo.GetByVerificationToken(ctx, token)
}

func (s *Service) Submit(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionSubmit, comment)
}

func (s *Service) Review(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionReview, comment)
}

func (s *Service) Approve(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionApprove, comment)
}

func (s *Service) Authorize(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionAuthorize, comment)
}

func (s *Service) Post(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionPost, comment)
}

func (s *Service) Reject(ctx context.Context, id, actorID int64, reason string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionReject, reason)
}

func (s *Service) Cancel(ctx context.Context, id, actorID int64, comment string) (*Result, error) {
	return s.transition(ctx, id, actorID, ActionCancel, comment)
}

// Do runs any action by name. Used by the HTTP layer.
func (s *Service) Do(ctx context.Context, action Action, id, actorID int64, comment string) (*Result, error) {
	if action.Valid() {
		return s.transition(ctx, id, actorID, action, comment)
	}
	return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, action)
}

func (s *Service) History(ctx context.Context, id int64) ([]*workflow.HistoryEntry, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	entries, err := history.Collect(s.ledger.ListForPayment(ctx, id))
	if err != nil {
		s.logger.Error("failed to read approval history", "error", err, "payment_id", id)
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return entries, nil
}

func (s *Service) transition(ctx context.Context, id, actorID int64, action Action, comment string) (*Result, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.apply(ctx, current, actorID, action, comment)
	if err != nil {
		s.logTransitionFailure(err, current, actorID, action)
		return nil, err
	}

	result := &Result{Payment: updated}

	if action != ActionPost && updated.LifecycleState == payment.StateApproved && s.settings.Load().AutoPostOnApproval {
		posted, err := s.apply(ctx, updated, actorID, ActionPost, autoPostComment)
		if err != nil {
			if !errors.Is(err, ErrPostingFailed) {
				err = fmt.Errorf("%w: %w", ErrPostingFailed, err)
			}
			result.PostingErr = err
			s.logger.Warn("auto-post after approval failed",
				"error", err,
				"payment_id", updated.ID,
				"actor_id", actorID)
		} else {
			result.Payment = posted
		}
	}

	return result, nil
}

// apply validates one transition and commits it. On error nothing was written.
func (s *Service) apply(ctx context.Context, current *payment.Payment, actorID int64, action Action, comment string) (*payment.Payment, error) {
	r, ok := transitions[transitionKey{current.LifecycleState, action}]
	if !ok {
		return nil, fmt.Errorf("%w: cannot %s a payment in %s", ErrInvalidTransition, action, current.LifecycleState)
	}

	isManager, err := s.has(ctx, actorID, permission.CapabilityManage)
	if err != nil {
		return nil, err
	}

	if err := s.checkCapability(ctx, current, actorID, action, r, isManager); err != nil {
		return nil, err
	}

	if err := checkSeparation(current, actorID, action, isManager); err != nil {
		return nil, err
	}

	if action == ActionReject && strings.TrimSpace(comment) == "" {
		return nil, fmt.Errorf("%w: a rejection reason is required", ErrValidation)
	}

	now := s.now().UTC()
	next := *current
	next.LifecycleState = r.next(current)
	next.UpdatedAt = now

	if action == ActionSubmit {
		requiresAuth, err := s.policy.RequiresAuthorization(ctx, current.Amount, current.Currency, current.Direction)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		next.RequiresAuthorization = requiresAuth
	}
	stamp(&next, action, actorID, now, comment)

	for _, hook := range s.hooks {
		tc := TransitionContext{Current: current, Action: action, To: next.LifecycleState, ActorID: actorID, Comment: comment}
		if err := hook.BeforeTransition(ctx, tc); err != nil {
			return nil, err
		}
	}

	if action == ActionPost && s.poster != nil {
		ref, err := s.poster.Post(ctx, &next)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPostingFailed, err)
		}
		next.PostingRef = &ref
	}

	entry := &workflow.HistoryEntry{
		PaymentID: current.ID,
		ActorID:   actorID,
		FromState: string(current.LifecycleState),
		ToState:   string(next.LifecycleState),
		Action:    string(action),
		Comment:   optional(comment),
		CreatedAt: now,
	}

	if err := s.repo.ApplyTransition(ctx, &Change{Payment: &next, ExpectedVersion: current.Version, Entry: entry}); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1

	s.logger.Info("payment transitioned",
		"payment_id", next.ID,
		"action", action,
		"from_state", current.LifecycleState,
		"to_state", next.LifecycleState,
		"actor_id", actorID,
		"version", next.Version)

	s.publish(ctx, &next, action, current.LifecycleState, actorID)
	return &next, nil
}

func (s *Service) checkCapability(ctx context.Context, p *payment.Payment, actorID int64, action Action, r rule, isManager bool) error {
	if r.ownerOrManage {
		if p.IsOwnedBy(actorID) || isManager {
			return nil
		}
		return fmt.Errorf("%w: only the owner or a manager may %s payment %d", ErrPermissionDenied, action, p.ID)
	}

	allowed := isManager
	if r.capability != permission.CapabilityManage {
		var err error
		allowed, err = s.has(ctx, actorID, r.capability)
		if err != nil {
			return err
		}
	}
	if !allowed {
		return fmt.Errorf("%w: actor %d lacks %s capability", ErrPermissionDenied, actorID, r.capability)
	}
	return nil
}

// checkSeparation keeps consecutive control stages in different hands for high-value payments.
func checkSeparation(p *payment.Payment, actorID int64, action Action, isManager bool) error {
	if !p.RequiresAuthorization || isManager {
		return nil
	}
	switch action {
	case ActionApprove:
		if p.ReviewedBy != nil && *p.ReviewedBy == actorID {
			return fmt.Errorf("%w: the reviewer of payment %d cannot also approve it", ErrPermissionDenied, p.ID)
		}
	case ActionAuthorize:
		if p.ApprovedBy != nil && *p.ApprovedBy == actorID {
			return fmt.Errorf("%w: the approver of payment %d cannot also authorize it", ErrPermissionDenied, p.ID)
		}
	}
	return nil
}

func (s *Service) has(ctx context.Context, actorID int64, c permission.Capability) (bool, error) {
	ok, err := s.resolver.HasCapability(ctx, actorID, c)
	if err != nil {
		return false, fmt.Errorf("%w: capability lookup: %w", ErrStoreUnavailable, err)
	}
	return ok, nil
}

func stamp(p *payment.Payment, action Action, actorID int64, at time.Time, comment string) {
	actor, ts := &actorID, &at
	switch action {
	case ActionSubmit:
		p.SubmittedBy, p.SubmittedAt = actor, ts
	case ActionReview:
		p.ReviewedBy, p.ReviewedAt = actor, ts
	case ActionApprove:
		p.ApprovedBy, p.ApprovedAt = actor, ts
	case ActionAuthorize:
		p.AuthorizedBy, p.AuthorizedAt = actor, ts
	case ActionPost:
		p.PostedBy, p.PostedAt = actor, ts
	case ActionCancel:
		p.CancelledBy, p.CancelledAt = actor, ts
	case ActionReject:
		reason := strings.TrimSpace(comment)
		p.RejectedBy, p.RejectedAt, p.RejectionReason = actor, ts, &reason
		p.ReviewedBy, p.ReviewedAt = nil, nil
		p.ApprovedBy, p.ApprovedAt = nil, nil
		p.AuthorizedBy, p.AuthorizedAt = nil, nil
	}
}

func (s *Service) publish(ctx context.Context, p *payment.Payment, action Action, from payment.State, actorID int64) {
	if s.bus == nil {
		return
	}
	event := events.NewPaymentTransitionedEvent(p.ID, deref(p.VoucherNumber), string(action),
		string(from), string(p.LifecycleState), actorID, p.CreatedBy)
	if err := s.bus.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish transition event", "error", err, "payment_id", p.ID)
	}
}

func (s *Service) logTransitionFailure(err error, p *payment.Payment, actorID int64, action Action) {
	attrs := []any{"error", err, "payment_id", p.ID, "action", action, "state", p.LifecycleState, "actor_id", actorID}
	switch {
	case errors.Is(err, ErrStoreUnavailable):
		s.logger.Error("transition aborted", attrs...)
	default:
		s.logger.Warn("transition refused", attrs...)
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
