package quota

import (
	"context"
	"fmt"
	"time"
)

// Service implements the usage-limit ledger: a read-only access guard, a
// write-only usage recorder driven by the guard's snapshot, and a reporting
// view. It never retries; store failures propagate to the caller and are
// never interpreted as a quota decision.
type Service struct {
	repo   Repository
	policy Policy
}

func NewService(repo Repository, policy Policy) *Service {
	return &Service{repo: repo, policy: policy}
}

// Policy returns the injected limit policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// CheckAccess decides whether the user may perform a new billable operation.
// It is strictly read-only; the returned decision carries enough state for
// RecordUsage to act later without a second read.
func (s *Service) CheckAccess(ctx context.Context, userID string) (AccessDecision, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return AccessDecision{}, fmt.Errorf("checking user access: %w", err)
	}

	// New user
	if u == nil {
		return AccessDecision{Allowed: true, IsNewUser: true}, nil
	}

	// Expired period wins over the limit check so an exhausted user regains
	// access the moment the period rolls over.
	if time.Now().After(u.ResetDate) {
		return AccessDecision{Allowed: true, NeedsReset: true, User: u}, nil
	}

	if u.CheckCount >= s.policy.MaxOperations {
		return AccessDecision{Allowed: false, Message: s.limitMessage()}, nil
	}

	return AccessDecision{Allowed: true, User: u}, nil
}

// RecordUsage persists one consumed operation using the decision snapshot
// captured at check time. It does not re-validate the limit; that was
// CheckAccess's job.
func (s *Service) RecordUsage(ctx context.Context, userID string, decision AccessDecision) error {
	switch {
	case decision.IsNewUser, decision.NeedsReset:
		resetDate := time.Now().Add(s.policy.Period)
		if err := s.repo.StartPeriod(ctx, userID, resetDate); err != nil {
			return fmt.Errorf("recording usage: %w", err)
		}
	default:
		if err := s.repo.Increment(ctx, userID, s.policy.MaxOperations); err != nil {
			return fmt.Errorf("recording usage: %w", err)
		}
	}
	return nil
}

// GetUsage reports the user's consumption in the current period. Unknown
// users and users whose period has expired report zero.
func (s *Service) GetUsage(ctx context.Context, userID string) (Usage, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return Usage{}, fmt.Errorf("getting user usage: %w", err)
	}

	if u == nil || time.Now().After(u.ResetDate) {
		return Usage{Used: 0, Limit: s.policy.MaxOperations}, nil
	}
	return Usage{Used: u.CheckCount, Limit: s.policy.MaxOperations}, nil
}

func (s *Service) limitMessage() string {
	return fmt.Sprintf("Daily limit reached (%d/%d). Limit resets in %s.",
		s.policy.MaxOperations, s.policy.MaxOperations, formatPeriod(s.policy.Period))
}

func formatPeriod(d time.Duration) string {
	if d%(24*time.Hour) == 0 && d > 24*time.Hour {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return d.String()
}
