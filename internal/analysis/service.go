package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ethnolens/ethnolens/internal/metrics"
	"github.com/ethnolens/ethnolens/internal/pending"
	"github.com/ethnolens/ethnolens/internal/quota"
)

// Generator is the model call performed between the access check and the
// pending-operation insert.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateWithImage(ctx context.Context, prompt, mimeType string, image []byte) (string, error)
}

// Result is a tentative analysis: the model's answer plus the operation id
// the client must confirm before the usage is permanently charged. An empty
// OpID means the pending insert failed after the model had already answered;
// the result is still delivered but can never be confirmed, and that usage
// is simply never charged.
type Result struct {
	Text  string `json:"result"`
	Score *int   `json:"score,omitempty"`
	OpID  string `json:"op_id,omitempty"`
}

// Service orchestrates the two-phase billing flow: access check, model call,
// tentative pending record, and client-driven confirmation.
type Service struct {
	quota   *quota.Service
	pending pending.Repository
	gen     Generator
}

func NewService(quotaSvc *quota.Service, pendingRepo pending.Repository, gen Generator) *Service {
	return &Service{quota: quotaSvc, pending: pendingRepo, gen: gen}
}

// AnalyzeText runs a design-review prompt through the model for the given
// user. A denied quota returns *quota.ExceededError before any model call.
func (s *Service) AnalyzeText(ctx context.Context, userID, prompt string) (*Result, error) {
	decision, err := s.quota.CheckAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		metrics.QuotaDenialsTotal.Inc()
		return nil, &quota.ExceededError{Message: decision.Message}
	}

	text, err := s.gen.GenerateText(ctx, buildTextPrompt(prompt))
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("text", "error").Inc()
		return nil, fmt.Errorf("generating analysis: %w", err)
	}
	metrics.AnalysesTotal.WithLabelValues("text", "ok").Inc()

	cleaned, score := extractScore(text)
	result := &Result{Text: cleaned, Score: score}
	result.OpID = s.createPending(ctx, userID, decision)
	return result, nil
}

// AnalyzeImage reviews an uploaded design image for the given country and
// business type.
func (s *Service) AnalyzeImage(ctx context.Context, userID, country, businessType, mimeType string, image []byte) (*Result, error) {
	decision, err := s.quota.CheckAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		metrics.QuotaDenialsTotal.Inc()
		return nil, &quota.ExceededError{Message: decision.Message}
	}

	text, err := s.gen.GenerateWithImage(ctx, buildImagePrompt(country, businessType), mimeType, image)
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("image", "error").Inc()
		return nil, fmt.Errorf("generating image analysis: %w", err)
	}
	metrics.AnalysesTotal.WithLabelValues("image", "ok").Inc()

	result := &Result{Text: text}
	result.OpID = s.createPending(ctx, userID, decision)
	return result, nil
}

// createPending records the tentative call. The model has already answered
// at this point, so a failed insert must not fail the request: the result is
// returned without an op id and the usage stays uncharged.
func (s *Service) createPending(ctx context.Context, userID string, decision quota.AccessDecision) string {
	op := pending.Op{
		UserIDHash: userID,
		IsNewUser:  decision.IsNewUser,
		NeedsReset: decision.NeedsReset,
	}
	if decision.User != nil {
		op.PrevCount = decision.User.CheckCount
	}

	opID, err := s.pending.Create(ctx, op)
	if err != nil {
		slog.Warn("pending insert failed, result unconfirmable", "user_id", userID, "error", err)
		return ""
	}
	return opID.String()
}

// Confirm converts a tentative call into a recorded usage increment. The
// pending delete is the atomicity gate: a second confirm for the same op id,
// or a confirm by a different user, gets pending.ErrNotFound and mutates
// nothing.
func (s *Service) Confirm(ctx context.Context, userID, opID string) error {
	id, err := uuid.Parse(opID)
	if err != nil {
		return pending.ErrNotFound
	}

	op, err := s.pending.Consume(ctx, userID, id)
	if err != nil {
		if errors.Is(err, pending.ErrNotFound) {
			metrics.ConfirmationsTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.ConfirmationsTotal.WithLabelValues("error").Inc()
		}
		return err
	}

	decision := quota.AccessDecision{
		Allowed:    true,
		IsNewUser:  op.IsNewUser,
		NeedsReset: op.NeedsReset,
	}
	if !op.IsNewUser {
		decision.User = &quota.UserQuota{UserIDHash: op.UserIDHash, CheckCount: op.PrevCount}
	}

	if err := s.quota.RecordUsage(ctx, userID, decision); err != nil {
		metrics.ConfirmationsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.ConfirmationsTotal.WithLabelValues("ok").Inc()
	return nil
}

// Usage reports the user's confirmed consumption for the current period.
func (s *Service) Usage(ctx context.Context, userID string) (quota.Usage, error) {
	return s.quota.GetUsage(ctx, userID)
}
