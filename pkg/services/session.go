package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/engine"
	"github.com/dukex/chatflow/pkg/eventbus"
	"github.com/dukex/chatflow/pkg/events"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
)

// Runner is the part of engine.Engine the session service drives.
type Runner interface {
	CreateSession(ctx context.Context, req engine.CreateSessionRequest) (engine.TurnResult, error)
	ContinueSession(ctx context.Context, s models.Session, userInput string) (engine.TurnResult, error)
	Abandon(s models.Session, at time.Time) (models.Session, error)
	Transfer(s models.Session, target string) (models.Session, error)
}

var _ Runner = (*engine.Engine)(nil)

// Sessions runs turns against stored snapshots. Each turn on a session holds
// that session's lock from load to save.
type Sessions struct {
	runner    Runner
	flows     engine.FlowSource
	repo      persistence.SessionRepository
	locker    persistence.Locker
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

type SessionsOption func(*Sessions)

func WithLocker(locker persistence.Locker) SessionsOption {
	return func(s *Sessions) {
		s.locker = locker
	}
}

func WithSessionsPublisher(publisher eventbus.EventPublisher) SessionsOption {
	return func(s *Sessions) {
		s.publisher = publisher
	}
}

func WithSessionsLogger(logger *slog.Logger) SessionsOption {
	return func(s *Sessions) {
		s.logger = logger
	}
}

func WithSessionsClock(now func() time.Time) SessionsOption {
	return func(s *Sessions) {
		s.now = now
	}
}

// NewSessions builds the service. flows is used only to redact PII variables
// from published events.
func NewSessions(runner Runner, flows engine.FlowSource, repo persistence.SessionRepository, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		runner:    runner,
		flows:     flows,
		repo:      repo,
		locker:    persistence.NewMemoryLocker(),
		publisher: eventbus.Discard{},
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Sessions) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.repo.SessionByID(ctx, id)
}

// Start creates a session, runs its first turn and stores the snapshot.
func (s *Sessions) Start(ctx context.Context, req engine.CreateSessionRequest) (engine.TurnResult, error) {
	if req.FlowID == "" {
		return engine.TurnResult{}, NewValidationError("Start", "flow_required", "flowId is required", ErrInvalidRequest)
	}

	result, err := s.runner.CreateSession(ctx, req)
	if err != nil {
		return engine.TurnResult{}, err
	}

	err = s.repo.SaveSession(ctx, &result.Session)
	if err != nil {
		return engine.TurnResult{}, fmt.Errorf("failed to save session: %w", err)
	}

	s.publish(ctx, events.SessionStarted{
		SessionBase: events.NewSessionBase(events.SessionStartedEvent, result.Session),
		ContactID:   result.Session.Contact.ID,
	})
	s.publishTurn(ctx, models.Session{Status: models.SessionStatusActive}, result)

	return result, nil
}

// Continue feeds one user message to a stored session.
func (s *Sessions) Continue(ctx context.Context, sessionID, userInput string) (engine.TurnResult, error) {
	var (
		before models.Session
		result engine.TurnResult
	)

	err := s.withLock(ctx, sessionID, func(current *models.Session) (*models.Session, error) {
		var err error

		before = *current

		result, err = s.runner.ContinueSession(ctx, *current, userInput)
		if err != nil {
			return nil, err
		}

		return &result.Session, nil
	})
	if err != nil {
		return engine.TurnResult{}, err
	}

	s.publishTurn(ctx, before, result)

	return result, nil
}

// Transfer hands the session to a human or another system.
func (s *Sessions) Transfer(ctx context.Context, sessionID, target string) (*models.Session, error) {
	if target == "" {
		return nil, NewValidationError("Transfer", "target_required", "transfer target is required", ErrTransferTargetMiss)
	}

	var transferred models.Session

	err := s.withLock(ctx, sessionID, func(current *models.Session) (*models.Session, error) {
		var err error

		transferred, err = s.runner.Transfer(*current, target)
		if err != nil {
			return nil, err
		}

		return &transferred, nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.SessionTransferred{
		SessionBase: events.NewSessionBase(events.SessionTransferredEvent, transferred),
		Target:      target,
	})

	return &transferred, nil
}

// AbandonIdle marks every active session idle for longer than maxIdle as
// abandoned. It returns how many sessions were abandoned; failures on single
// sessions are joined into the error without stopping the sweep.
func (s *Sessions) AbandonIdle(ctx context.Context, maxIdle time.Duration) (int, error) {
	now := s.now()
	cutoff := now.Add(-maxIdle)

	idle, err := s.repo.ActiveSessionsIdleSince(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	var (
		abandoned int
		errs      []error
	)

	for _, candidate := range idle {
		var (
			updated  *models.Session
			lastSeen time.Time
		)

		err := s.withLock(ctx, candidate.ID, func(current *models.Session) (*models.Session, error) {
			// a turn may have landed between the listing and the lock
			if !current.IsActive() || !current.LastActivityAt.Before(cutoff) {
				return nil, nil
			}

			next, err := s.runner.Abandon(*current, now)
			if err != nil {
				return nil, err
			}

			updated = &next
			lastSeen = current.LastActivityAt

			return updated, nil
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to abandon session", "session_id", candidate.ID, "error", err)
			errs = append(errs, fmt.Errorf("session %s: %w", candidate.ID, err))

			continue
		}

		if updated == nil {
			continue
		}

		abandoned++

		s.publish(ctx, events.SessionAbandoned{
			SessionBase: events.NewSessionBase(events.SessionAbandonedEvent, *updated),
			IdleFor:     now.Sub(lastSeen),
		})
	}

	if abandoned > 0 {
		s.logger.InfoContext(ctx, "Abandoned idle sessions", "count", abandoned, "cutoff", cutoff)
	}

	return abandoned, errors.Join(errs...)
}

// withLock loads the session under its lock and saves whatever fn returns.
// A nil session from fn means nothing to save.
func (s *Sessions) withLock(ctx context.Context, sessionID string, fn func(current *models.Session) (*models.Session, error)) error {
	unlock, err := s.locker.Lock(ctx, sessionID)
	if err != nil {
		return err
	}

	defer func() {
		// release even when ctx is already cancelled
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "failed to release session lock", "session_id", sessionID, "error", err)
		}
	}()

	current, err := s.repo.SessionByID(ctx, sessionID)
	if err != nil {
		return err
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}

	if updated == nil {
		return nil
	}

	err = s.repo.SaveSession(ctx, updated)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}

// publishTurn emits the turn event plus the node failures and status changes it caused.
func (s *Sessions) publishTurn(ctx context.Context, before models.Session, result engine.TurnResult) {
	after := result.Session

	s.publish(ctx, events.SessionTurn{
		SessionBase:          events.NewSessionBase(events.SessionTurnEvent, after),
		Responses:            len(result.Responses),
		Pending:              after.Context.Pending,
		CompletionPercentage: after.CompletionPercentage,
	})

	for _, failure := range after.Context.Errors[min(len(before.Context.Errors), len(after.Context.Errors)):] {
		s.publish(ctx, events.SessionNodeFailed{
			SessionBase: events.NewSessionBase(events.SessionNodeFailedEvent, after),
			NodeID:      failure.NodeID,
			Error:       failure.Message,
			ErrorCount:  len(after.Context.Errors),
		})
	}

	if before.Status == after.Status {
		return
	}

	switch after.Status {
	case models.SessionStatusCompleted:
		s.publish(ctx, events.SessionCompleted{
			SessionBase:     events.NewSessionBase(events.SessionCompletedEvent, after),
			DurationSeconds: after.DurationSeconds,
			Variables:       s.publicVariables(ctx, after),
		})
	case models.SessionStatusError:
		s.publish(ctx, events.SessionFailed{
			SessionBase: events.NewSessionBase(events.SessionFailedEvent, after),
			Errors:      after.Context.Errors,
		})
	case models.SessionStatusActive, models.SessionStatusAbandoned, models.SessionStatusTransferred:
	}
}

// publicVariables returns the captured variables minus those the flow declares as PII.
func (s *Sessions) publicVariables(ctx context.Context, session models.Session) map[string]any {
	var flow *models.Flow

	if s.flows != nil {
		loaded, err := s.flows.Flow(ctx, session.FlowID)
		if err == nil {
			flow = loaded
		}
	}

	vars := make(map[string]any, len(session.Variables))

	for _, v := range session.Variables {
		if flow != nil {
			if decl, ok := flow.Variable(v.Name); ok && decl.IsPII {
				continue
			}
		}

		vars[v.Name] = v.Value
	}

	return vars
}

type sessionEvent interface {
	eventbus.Event
	Key() string
}

func (s *Sessions) publish(ctx context.Context, event sessionEvent) {
	err := s.publisher.Publish(ctx, event.Key(), event)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish session event", "event_type", event.GetType(), "error", err)
	}
}
