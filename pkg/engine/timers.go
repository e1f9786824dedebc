package engine

import (
	"context"
	"errors"

	"github.com/dukex/chatflow/pkg/persistence"
)

// ProcessDue resumes every session whose timer elapsed: delays continue,
// settled input is evaluated and unanswered input times out. It returns the
// number of sessions resumed. A failing session does not stop the others.
func (e *Engine) ProcessDue(ctx context.Context) (int, error) {
	now := e.clock.Now()

	due, err := e.sessions.GetDue(ctx, now)
	if err != nil {
		return 0, err
	}

	var (
		processed int
		errs      []error
	)

	for _, candidate := range due {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}

		resumed := false

		err := e.guard.WithLock(ctx, candidate.ChatID, func(ctx context.Context) error {
			var err error

			resumed, err = e.resumeDue(ctx, candidate.ID)

			return err
		})
		if err != nil {
			e.logger.ErrorContext(ctx, "failed to resume session", "session_id", candidate.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		if resumed {
			processed++
		}
	}

	return processed, errors.Join(errs...)
}

// resumeDue reloads the session under the lock, since another worker may
// have advanced it since GetDue.
func (e *Engine) resumeDue(ctx context.Context, id string) (bool, error) {
	session, err := e.sessions.GetByID(ctx, id)
	if err != nil {
		return false, err
	}

	now := e.clock.Now()
	if !session.IsDue(now) {
		return false, nil
	}

	return true, e.resumeWaiting(ctx, session)
}

// Cancel stops a session. The request is stored first so a worker running
// the session elsewhere stops at its next checkpoint, then the session is
// ended here if it is still active.
func (e *Engine) Cancel(ctx context.Context, sessionID string) error {
	err := e.sessions.RequestCancel(ctx, sessionID)
	if err != nil {
		return err
	}

	current, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}

	return e.guard.WithLock(ctx, current.ChatID, func(ctx context.Context) error {
		session, err := e.sessions.GetByID(ctx, sessionID)
		if err != nil {
			if persistence.IsSessionNotFound(err) {
				return nil
			}

			return err
		}

		if session.IsTerminal() {
			return nil
		}

		return e.cancelled(ctx, session)
	})
}
