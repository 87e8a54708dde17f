package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/checkpoint"
)

// StreakRecorder receives completion events for streak tracking.
// Optional: deployments without streak tracking leave it unset.
type StreakRecorder interface {
	RecordCompletion(ctx context.Context, userID string, at time.Time) (bool, error)
}

// ServiceConfig holds configuration for the session service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Streaks is notified on session completion. Nil disables streak updates.
	Streaks StreakRecorder
}

// Service provides commute session lifecycle operations.
type Service struct {
	repo    Repository
	logger  zerolog.Logger
	streaks StreakRecorder
}

// NewService creates a new session service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:    cfg.Repository,
		logger:  cfg.Logger,
		streaks: cfg.Streaks,
	}
}

// Start creates a new in-progress session for a user.
func (s *Service) Start(ctx context.Context, userID, routeID, regionID string, startedAt time.Time) (*Session, error) {
	sess := &Session{
		ID:        "ses_" + uuid.New().String()[:22],
		UserID:    userID,
		RouteID:   routeID,
		RegionID:  regionID,
		Status:    StatusInProgress,
		StartedAt: startedAt,
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	return sess, nil
}

// RecordArrival logs the arrival at the next checkpoint of an in-progress
// session. The sequence number continues from the last recorded checkpoint.
func (s *Service) RecordArrival(ctx context.Context, userID, sessionID string, cp checkpoint.Checkpoint, arrivedAt time.Time) (*Session, error) {
	sess, err := s.repo.GetByUserAndID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Finalized() {
		return nil, ErrSessionFinalized
	}

	rec := CheckpointRecord{
		Seq:        len(sess.Records),
		Checkpoint: cp,
		ArrivedAt:  arrivedAt,
	}

	if err := s.repo.AppendRecord(ctx, sessionID, rec); err != nil {
		return nil, err
	}

	sess.Records = append(sess.Records, rec)
	return sess, nil
}

// FinalizeResult reports the outcome of a completion or abandonment attempt.
type FinalizeResult struct {
	// Updated is false when the session was already finalized; an expected
	// race, not an error.
	Updated bool
	Session *Session
}

// Complete finalizes a session as completed and records the completion
// toward the user's streak. Completing an already-finalized session is a
// no-op with Updated=false.
func (s *Service) Complete(ctx context.Context, userID, sessionID string, at time.Time) (*FinalizeResult, error) {
	result, err := s.finalize(ctx, userID, sessionID, StatusCompleted, at)
	if err != nil || !result.Updated {
		return result, err
	}

	if s.streaks != nil {
		if _, err := s.streaks.RecordCompletion(ctx, userID, at); err != nil {
			// Streak bookkeeping must not fail the completion itself.
			s.logger.Error().Err(err).
				Str("user_id", userID).
				Str("session_id", sessionID).
				Msg("failed to record streak completion")
		}
	}

	return result, nil
}

// Abandon finalizes a session as abandoned. Idempotent like Complete but
// never counts toward streaks.
func (s *Service) Abandon(ctx context.Context, userID, sessionID string, at time.Time) (*FinalizeResult, error) {
	return s.finalize(ctx, userID, sessionID, StatusAbandoned, at)
}

func (s *Service) finalize(ctx context.Context, userID, sessionID string, status Status, at time.Time) (*FinalizeResult, error) {
	sess, err := s.repo.GetByUserAndID(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	err = s.repo.Finalize(ctx, sessionID, status, at)
	if err != nil {
		if errors.Is(err, ErrSessionFinalized) {
			return &FinalizeResult{Updated: false, Session: sess}, nil
		}
		return nil, err
	}

	sess.Status = status
	sess.EndedAt = &at
	return &FinalizeResult{Updated: true, Session: sess}, nil
}

// Get retrieves a session owned by the user.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (*Session, error) {
	return s.repo.GetByUserAndID(ctx, userID, sessionID)
}
