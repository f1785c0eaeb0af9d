package statemachine

import (
	"testing"
	"time"

	"codearena/internal/contest/model"
	pkgerrors "codearena/pkg/errors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newContest(max int) *model.Contest {
	return &model.Contest{
		ID:              1,
		StartTime:       base.Add(time.Hour),
		EndTime:         base.Add(5 * time.Hour),
		DurationMinutes: 90,
		Status:          model.StatusUpcoming,
		MaxParticipants: max,
		Problems: []model.ContestProblem{
			{ProblemID: 10, Points: 100, Order: 1},
			{ProblemID: 11, Points: 200, Order: 2},
		},
	}
}

func started(t *testing.T, c *model.Contest, users ...int64) time.Time {
	t.Helper()
	for _, u := range users {
		if err := Join(c, u, base); err != nil {
			t.Fatalf("join %d: %v", u, err)
		}
	}
	at := c.StartTime.Add(time.Minute)
	for _, u := range users {
		if err := StartAttempt(c, u, at); err != nil {
			t.Fatalf("start %d: %v", u, err)
		}
	}
	return at
}

func TestEffectiveStatus(t *testing.T) {
	c := newContest(0)
	cases := []struct {
		name   string
		stored model.Status
		now    time.Time
		want   model.Status
	}{
		{"before start", model.StatusUpcoming, base, model.StatusUpcoming},
		{"inside window", model.StatusUpcoming, base.Add(2 * time.Hour), model.StatusActive},
		{"at end", model.StatusActive, c.EndTime, model.StatusCompleted},
		{"operator moved forward", model.StatusActive, base, model.StatusActive},
		{"stale stored status", model.StatusUpcoming, base.Add(6 * time.Hour), model.StatusCompleted},
		{"cancelled stays", model.StatusCancelled, base.Add(2 * time.Hour), model.StatusCancelled},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.Status = tc.stored
			if got := EffectiveStatus(c, tc.now); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestJoinContestFull(t *testing.T) {
	c := newContest(1)
	if err := Join(c, 1, base); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	err := Join(c, 2, base)
	if !pkgerrors.Is(err, pkgerrors.ContestFull) {
		t.Fatalf("expected ContestFull, got %v", err)
	}
	if len(c.Participants) != 1 {
		t.Fatalf("expected 1 participant, got %d", len(c.Participants))
	}
	if c.Stats.TotalParticipants != 1 {
		t.Fatalf("expected stats to count 1 participant, got %d", c.Stats.TotalParticipants)
	}
}

func TestJoinErrors(t *testing.T) {
	c := newContest(0)
	if err := Join(c, 1, base); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := Join(c, 1, base); !pkgerrors.Is(err, pkgerrors.AlreadyRegistered) {
		t.Fatalf("expected AlreadyRegistered, got %v", err)
	}
	if err := Join(c, 2, base.Add(2*time.Hour)); !pkgerrors.Is(err, pkgerrors.RegistrationClosed) {
		t.Fatalf("expected RegistrationClosed, got %v", err)
	}
	if err := Join(c, 3, base); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if c.Participants[0].JoinSeq >= c.Participants[1].JoinSeq {
		t.Fatalf("join sequence not increasing: %+v", c.Participants)
	}
}

func TestStartAttemptTwice(t *testing.T) {
	c := newContest(0)
	at := started(t, c, 1)
	p := c.Participant(1)
	wantEnd := at.Add(90 * time.Minute)
	if !p.EndTime.Equal(wantEnd) {
		t.Fatalf("expected end %v, got %v", wantEnd, p.EndTime)
	}

	err := StartAttempt(c, 1, at.Add(10*time.Minute))
	if !pkgerrors.Is(err, pkgerrors.AlreadyStarted) {
		t.Fatalf("expected AlreadyStarted, got %v", err)
	}
	if !c.Participant(1).EndTime.Equal(wantEnd) {
		t.Fatalf("end time changed to %v", c.Participant(1).EndTime)
	}
}

func TestStartAttemptErrors(t *testing.T) {
	c := newContest(0)
	if err := StartAttempt(c, 9, base); !pkgerrors.Is(err, pkgerrors.NotRegistered) {
		t.Fatalf("expected NotRegistered, got %v", err)
	}
	if err := Join(c, 1, base); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if err := StartAttempt(c, 1, base); !pkgerrors.Is(err, pkgerrors.ContestNotActive) {
		t.Fatalf("expected ContestNotActive, got %v", err)
	}
}

func TestRecordSolve(t *testing.T) {
	c := newContest(0)
	at := started(t, c, 1, 2)

	if err := RecordSolve(c, 2, 10, 100, 5*time.Minute, at.Add(5*time.Minute)); err != nil {
		t.Fatalf("record solve failed: %v", err)
	}
	p := c.Participant(2)
	if p.Score != 100 || len(p.Solved) != 1 || p.Solved[0].TimeTaken != 300 {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if p.Rank != 1 || c.Participant(1).Rank != 2 {
		t.Fatalf("unexpected ranks: %d %d", p.Rank, c.Participant(1).Rank)
	}
	if c.Stats.CompletionRate != 50 || c.Stats.AverageScore != 50 {
		t.Fatalf("unexpected stats: %+v", c.Stats)
	}
}

func TestRecordSolveErrors(t *testing.T) {
	c := newContest(0)
	if err := Join(c, 1, base); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	inside := c.StartTime.Add(time.Minute)
	if err := RecordSolve(c, 9, 10, 100, 0, inside); !pkgerrors.Is(err, pkgerrors.NotRegistered) {
		t.Fatalf("expected NotRegistered, got %v", err)
	}
	if err := RecordSolve(c, 1, 10, 100, 0, inside); !pkgerrors.Is(err, pkgerrors.NotStarted) {
		t.Fatalf("expected NotStarted, got %v", err)
	}
	if err := StartAttempt(c, 1, inside); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := RecordSolve(c, 1, 99, 100, 0, inside); !pkgerrors.Is(err, pkgerrors.ProblemNotInContest) {
		t.Fatalf("expected ProblemNotInContest, got %v", err)
	}
	if err := RecordSolve(c, 1, 10, 100, 0, inside); err != nil {
		t.Fatalf("record solve failed: %v", err)
	}
	if err := RecordSolve(c, 1, 10, 100, 0, inside); !pkgerrors.Is(err, pkgerrors.AlreadySolved) {
		t.Fatalf("expected AlreadySolved, got %v", err)
	}
	if c.Participant(1).Score != 100 {
		t.Fatalf("expected score 100, got %d", c.Participant(1).Score)
	}
}

func TestRecordSolveAfterWindow(t *testing.T) {
	c := newContest(0)
	at := started(t, c, 1)
	late := at.Add(91 * time.Minute)

	err := RecordSolve(c, 1, 10, 100, 91*time.Minute, late)
	if !pkgerrors.Is(err, pkgerrors.AttemptExpired) {
		t.Fatalf("expected AttemptExpired, got %v", err)
	}
	if p := c.Participant(1); p.Score != 0 || len(p.Solved) != 0 {
		t.Fatalf("participant changed: %+v", p)
	}
}

func TestStartAttemptCappedAtContestEnd(t *testing.T) {
	c := newContest(0)
	if err := Join(c, 1, base); err != nil {
		t.Fatalf("join failed: %v", err)
	}
	late := c.EndTime.Add(-30 * time.Minute)
	if err := StartAttempt(c, 1, late); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if end := c.Participant(1).EndTime; !end.Equal(c.EndTime) {
		t.Fatalf("expected window capped at %v, got %v", c.EndTime, end)
	}

	err := RecordSolve(c, 1, 10, 100, time.Hour, c.EndTime.Add(30*time.Minute))
	if !pkgerrors.Is(err, pkgerrors.AttemptExpired) {
		t.Fatalf("expected AttemptExpired after contest end, got %v", err)
	}
	if p := c.Participant(1); p.Score != 0 || len(p.Solved) != 0 {
		t.Fatalf("participant changed: %+v", p)
	}
}

func TestRecordSolveRequiresActiveContest(t *testing.T) {
	for _, status := range []model.Status{model.StatusCancelled, model.StatusCompleted} {
		t.Run(string(status), func(t *testing.T) {
			c := newContest(0)
			at := started(t, c, 1)
			c.Status = status

			inside := at.Add(5 * time.Minute)
			if _, err := CheckWindow(c, 1, 10, inside); !pkgerrors.Is(err, pkgerrors.ContestNotActive) {
				t.Fatalf("expected ContestNotActive from check, got %v", err)
			}
			err := RecordSolve(c, 1, 10, 100, 5*time.Minute, inside)
			if !pkgerrors.Is(err, pkgerrors.ContestNotActive) {
				t.Fatalf("expected ContestNotActive, got %v", err)
			}
			if p := c.Participant(1); p.Score != 0 || len(p.Solved) != 0 {
				t.Fatalf("participant changed: %+v", p)
			}
		})
	}
}

func TestTransition(t *testing.T) {
	cases := []struct {
		name   string
		stored model.Status
		now    time.Time
		target model.Status
		ok     bool
	}{
		{"start early", model.StatusUpcoming, base, model.StatusActive, true},
		{"cancel upcoming", model.StatusUpcoming, base, model.StatusCancelled, true},
		{"complete active", model.StatusUpcoming, base.Add(2 * time.Hour), model.StatusCompleted, true},
		{"cancel active", model.StatusActive, base.Add(2 * time.Hour), model.StatusCancelled, true},
		{"reopen completed", model.StatusCompleted, base.Add(6 * time.Hour), model.StatusActive, false},
		{"revive cancelled", model.StatusCancelled, base, model.StatusUpcoming, false},
		{"skip to completed", model.StatusUpcoming, base, model.StatusCompleted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newContest(0)
			c.Status = tc.stored
			err := Transition(c, tc.target, tc.now)
			if tc.ok {
				if err != nil {
					t.Fatalf("transition failed: %v", err)
				}
				if c.Status != tc.target {
					t.Fatalf("expected %s, got %s", tc.target, c.Status)
				}
				return
			}
			if !pkgerrors.Is(err, pkgerrors.InvalidTransition) {
				t.Fatalf("expected InvalidTransition, got %v", err)
			}
			if c.Status != tc.stored {
				t.Fatalf("status changed to %s", c.Status)
			}
		})
	}
}
