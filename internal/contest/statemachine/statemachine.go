// Package statemachine holds the contest lifecycle and participant rules.
//
// Every function works on the contest it is given and takes the current time
// as an argument. Callers clone the loaded snapshot before applying a rule and
// persist the result with a version check.
package statemachine

import (
	"time"

	"codearena/internal/contest/model"
	"codearena/internal/contest/scoring"
	pkgerrors "codearena/pkg/errors"
)

// TimeStatus derives the status from the contest window alone.
func TimeStatus(c *model.Contest, now time.Time) model.Status {
	switch {
	case now.Before(c.StartTime):
		return model.StatusUpcoming
	case now.Before(c.EndTime):
		return model.StatusActive
	default:
		return model.StatusCompleted
	}
}

// EffectiveStatus is the later of the stored and the time-derived status.
// A cancelled contest stays cancelled.
func EffectiveStatus(c *model.Contest, now time.Time) model.Status {
	if c.Status == model.StatusCancelled {
		return model.StatusCancelled
	}
	derived := TimeStatus(c, now)
	if c.Status.Progress() > derived.Progress() {
		return c.Status
	}
	return derived
}

// Join registers userID. Checks run in order: full, duplicate, closed.
func Join(c *model.Contest, userID int64, now time.Time) error {
	if c.MaxParticipants > 0 && len(c.Participants) >= c.MaxParticipants {
		return pkgerrors.New(pkgerrors.ContestFull)
	}
	if c.Participant(userID) != nil {
		return pkgerrors.New(pkgerrors.AlreadyRegistered)
	}
	if EffectiveStatus(c, now) != model.StatusUpcoming {
		return pkgerrors.New(pkgerrors.RegistrationClosed)
	}
	c.NextJoinSeq++
	c.Participants = append(c.Participants, model.Participant{
		UserID:   userID,
		JoinedAt: now,
		JoinSeq:  c.NextJoinSeq,
		Solved:   []model.SolvedEntry{},
	})
	c.Stats = scoring.ComputeStats(c.Participants)
	return nil
}

// StartAttempt opens the personal window [now, now+duration) for userID. The
// window never extends past the contest end.
func StartAttempt(c *model.Contest, userID int64, now time.Time) error {
	p := c.Participant(userID)
	if p == nil {
		return pkgerrors.New(pkgerrors.NotRegistered)
	}
	if p.StartTime != nil {
		return pkgerrors.New(pkgerrors.AlreadyStarted)
	}
	if EffectiveStatus(c, now) != model.StatusActive {
		return pkgerrors.New(pkgerrors.ContestNotActive)
	}
	start := now
	end := now.Add(c.Duration())
	if end.After(c.EndTime) {
		end = c.EndTime
	}
	p.StartTime = &start
	p.EndTime = &end
	return nil
}

// CheckWindow reports whether userID may submit to problemID right now.
// Checks run in order: registered, started, window open, contest active,
// problem in contest, not yet solved.
func CheckWindow(c *model.Contest, userID, problemID int64, now time.Time) (*model.Participant, error) {
	p := c.Participant(userID)
	if p == nil {
		return nil, pkgerrors.New(pkgerrors.NotRegistered)
	}
	if p.StartTime == nil || p.EndTime == nil {
		return nil, pkgerrors.New(pkgerrors.NotStarted)
	}
	if now.After(*p.EndTime) {
		return nil, pkgerrors.New(pkgerrors.AttemptExpired)
	}
	if EffectiveStatus(c, now) != model.StatusActive {
		return nil, pkgerrors.New(pkgerrors.ContestNotActive)
	}
	if _, ok := c.Problem(problemID); !ok {
		return nil, pkgerrors.New(pkgerrors.ProblemNotInContest)
	}
	if p.HasSolved(problemID) {
		return nil, pkgerrors.New(pkgerrors.AlreadySolved)
	}
	return p, nil
}

// RecordSolve credits problemID to userID and recomputes ranks.
func RecordSolve(c *model.Contest, userID, problemID, points int64, timeTaken time.Duration, now time.Time) error {
	p, err := CheckWindow(c, userID, problemID, now)
	if err != nil {
		return err
	}
	p.Solved = append(p.Solved, model.SolvedEntry{
		ProblemID:     problemID,
		SolvedAt:      now,
		TimeTaken:     int64(timeTaken / time.Second),
		PointsAwarded: points,
	})
	p.Score += points
	scoring.Apply(c)
	return nil
}

var transitions = map[model.Status][]model.Status{
	model.StatusUpcoming: {model.StatusActive, model.StatusCancelled},
	model.StatusActive:   {model.StatusCompleted, model.StatusCancelled},
}

// Transition applies an operator status change.
func Transition(c *model.Contest, target model.Status, now time.Time) error {
	from := EffectiveStatus(c, now)
	for _, to := range transitions[from] {
		if to == target {
			c.Status = target
			return nil
		}
	}
	return pkgerrors.Newf(pkgerrors.InvalidTransition, "cannot move contest from %s to %s", from, target)
}
