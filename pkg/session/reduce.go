// Package session implements the session state machine as a pure reducer over
// immutable session snapshots.
package session

import (
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/variables"
)

// completionCap bounds the heuristic completion percentage of an unfinished session.
const completionCap = 95

// completionPerInteraction is the percentage credited for each step taken.
const completionPerInteraction = 10

// Reduce applies event to s and returns the next snapshot. The input snapshot
// is never modified. Errors leave the caller with the previous snapshot.
func Reduce(s models.Session, event Event) (models.Session, error) {
	if _, ok := event.(Start); !ok {
		if err := checkActive(s, event); err != nil {
			return s, err
		}

		if s.Status == models.SessionStatusError {
			// Errors arriving after the threshold do not extend the count.
			return s, nil
		}
	}

	next := s.Clone()

	switch e := event.(type) {
	case Start:
		if s.Status != "" {
			return s, reject(s, event, ErrAlreadyStarted)
		}

		if e.EntryNodeID == "" {
			return s, reject(s, event, ErrNoEntryNode)
		}

		at := e.At
		next.Status = models.SessionStatusActive
		next.StartedAt = &at
		next.LastActivityAt = at
		next.Context = models.SessionContext{CurrentNodeID: e.EntryNodeID, Errors: []models.SessionError{}}
		next.Metrics = models.SessionMetrics{}
		next.CompletionPercentage = 0
		next.IsCompleted = false
	case MoveToNode:
		next.Context.PreviousNodeID = s.Context.CurrentNodeID
		next.Context.CurrentNodeID = e.NodeID
		clearWait(&next.Context)
		touch(&next, e.At)
	case WaitForInput:
		next.Context.IsWaitingForInput = true
		next.Context.Pending = models.PendingInput
		next.Context.ExpectedVariable = e.Variable
		next.Context.ExpectedInputType = e.InputType
		next.Context.PendingChoices = nil
		touch(&next, e.At)
	case WaitForChoice:
		next.Context.IsWaitingForInput = true
		next.Context.Pending = models.PendingChoice
		next.Context.ExpectedVariable = e.Variable
		next.Context.ExpectedInputType = ""
		next.Context.PendingChoices = append([]models.Button(nil), e.Choices...)
		touch(&next, e.At)
	case AddStep:
		next.ConversationSteps = append(next.ConversationSteps, e.Step)
		next.Metrics.TotalInteractions++

		switch e.Step.Role {
		case models.StepRoleBot:
			next.Metrics.BotMessages++
		case models.StepRoleUser:
			next.Metrics.UserMessages++
		case models.StepRoleSystem:
		}

		next.CompletionPercentage = min(completionCap, next.Metrics.TotalInteractions*completionPerInteraction)
		touch(&next, e.Step.Timestamp)
	case SetVariable:
		store := variables.NewStore(next.Variables)
		if !e.At.IsZero() {
			at := e.At
			store.WithClock(func() time.Time { return at })
		}

		store.Set(e.Name, e.Value, e.Type, e.SourceNodeID)
		next.Variables = store.Captured()
		touch(&next, e.At)
	case AddError:
		next.Context.Errors = append(next.Context.Errors, models.SessionError{
			Message:    e.Message,
			NodeID:     e.NodeID,
			OccurredAt: e.At,
		})
		next.Context.RetryCount++

		if next.Context.RetryCount >= models.MaxSessionErrors {
			next.Status = models.SessionStatusError
			clearWait(&next.Context)
			next.DurationSeconds = duration(next.StartedAt, e.At)
		}

		touch(&next, e.At)
	case Complete:
		at := e.At
		next.Status = models.SessionStatusCompleted
		next.CompletedAt = &at
		next.IsCompleted = true
		next.CompletionPercentage = 100
		next.DurationSeconds = duration(next.StartedAt, at)
		clearWait(&next.Context)
		touch(&next, at)
	case Abandon:
		at := e.At
		next.Status = models.SessionStatusAbandoned
		next.AbandonedAt = &at
		next.DurationSeconds = duration(next.StartedAt, at)
		clearWait(&next.Context)
	case Transfer:
		next.Status = models.SessionStatusTransferred
		next.TransferTarget = e.Target
		next.DurationSeconds = duration(next.StartedAt, e.At)
		clearWait(&next.Context)
		touch(&next, e.At)
	case Touch:
		touch(&next, e.At)
	default:
		return s, reject(s, event, ErrUnknownEvent)
	}

	return next, nil
}

// Apply reduces the events in order and stops at the first rejected one.
func Apply(s models.Session, events ...Event) (models.Session, error) {
	for _, event := range events {
		next, err := Reduce(s, event)
		if err != nil {
			return s, err
		}

		s = next
	}

	return s, nil
}

func checkActive(s models.Session, event Event) error {
	switch s.Status {
	case models.SessionStatusActive:
		return nil
	case "":
		// Variables may be seeded before the session starts.
		switch event.(type) {
		case SetVariable, Touch:
			return nil
		default:
			return reject(s, event, ErrNotStarted)
		}
	case models.SessionStatusError:
		if _, ok := event.(AddError); ok {
			return nil
		}

		return reject(s, event, ErrSessionNotActive)
	default:
		return reject(s, event, ErrSessionNotActive)
	}
}

func reject(s models.Session, event Event, err error) error {
	return &TransitionError{SessionID: s.ID, Event: event.eventName(), Err: err}
}

func clearWait(ctx *models.SessionContext) {
	ctx.IsWaitingForInput = false
	ctx.Pending = models.PendingNone
	ctx.ExpectedVariable = ""
	ctx.ExpectedInputType = ""
	ctx.PendingChoices = nil
}

func touch(s *models.Session, at time.Time) {
	if !at.IsZero() {
		s.LastActivityAt = at
	}
}

func duration(startedAt *time.Time, end time.Time) int64 {
	if startedAt == nil || end.IsZero() {
		return 0
	}

	return int64(end.Sub(*startedAt).Seconds())
}
