// Package model defines contests and their participants.
package model

import "time"

type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Progress orders the time-driven statuses. Cancelled sits outside the order.
func (s Status) Progress() int {
	switch s {
	case StatusUpcoming:
		return 0
	case StatusActive:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.Progress() >= 0 || s == StatusCancelled
}

type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
	TypeSpecial Type = "special"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDaily, TypeWeekly, TypeMonthly, TypeSpecial:
		return true
	}
	return false
}

// ContestProblem is one problem of a contest with the points it awards.
type ContestProblem struct {
	ProblemID int64 `json:"problemId"`
	Points    int64 `json:"points"`
	Order     int   `json:"order"`
}

// PrizeTier pays Coins, or Percentage of the pool when Coins is zero, to the given rank.
type PrizeTier struct {
	Rank       int     `json:"rank"`
	Percentage float64 `json:"percentage,omitempty"`
	Coins      int64   `json:"coins,omitempty"`
}

type PrizePool struct {
	Coins        int64       `json:"coins"`
	Distribution []PrizeTier `json:"distribution"`
}

type SolvedEntry struct {
	ProblemID     int64     `json:"problemId"`
	SolvedAt      time.Time `json:"solvedAt"`
	TimeTaken     int64     `json:"timeTakenSeconds"`
	PointsAwarded int64     `json:"pointsAwarded"`
}

type Participant struct {
	UserID    int64         `json:"userId"`
	JoinedAt  time.Time     `json:"joinedAt"`
	JoinSeq   int64         `json:"joinSeq"`
	StartTime *time.Time    `json:"startTime,omitempty"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Score     int64         `json:"score"`
	Rank      int           `json:"rank"`
	Solved    []SolvedEntry `json:"solved"`
}

// LastSolveAt is the latest solve time, or the zero time without solves.
func (p *Participant) LastSolveAt() time.Time {
	var last time.Time
	for _, s := range p.Solved {
		if s.SolvedAt.After(last) {
			last = s.SolvedAt
		}
	}
	return last
}

func (p *Participant) HasSolved(problemID int64) bool {
	for _, s := range p.Solved {
		if s.ProblemID == problemID {
			return true
		}
	}
	return false
}

type Stats struct {
	TotalParticipants int     `json:"totalParticipants"`
	AverageScore      float64 `json:"averageScore"`
	CompletionRate    float64 `json:"completionRate"`
}

// Standing is one leaderboard row.
type Standing struct {
	Rank        int        `json:"rank"`
	UserID      int64      `json:"userId"`
	Score       int64      `json:"score"`
	SolvedCount int        `json:"solvedCount"`
	LastSolveAt *time.Time `json:"lastSolveAt,omitempty"`
}

// Payout is the prize computed for one participant. Crediting happens elsewhere.
type Payout struct {
	Rank   int   `json:"rank"`
	UserID int64 `json:"userId"`
	Coins  int64 `json:"coins"`
}

type Contest struct {
	ID              int64            `json:"id"`
	Title           string           `json:"title"`
	Slug            string           `json:"slug"`
	Description     string           `json:"description"`
	Type            Type             `json:"type"`
	Difficulty      string           `json:"difficulty"`
	Topics          []string         `json:"topics,omitempty"`
	StartTime       time.Time        `json:"startTime"`
	EndTime         time.Time        `json:"endTime"`
	DurationMinutes int              `json:"durationMinutes"`
	Status          Status           `json:"status"`
	Problems        []ContestProblem `json:"problems"`
	MaxParticipants int              `json:"maxParticipants"`
	EntryFee        int64            `json:"entryFee"`
	PrizePool       PrizePool        `json:"prizePool"`
	Participants    []Participant    `json:"participants"`
	Stats           Stats            `json:"stats"`
	Payouts         []Payout         `json:"payouts,omitempty"`
	NextJoinSeq     int64            `json:"nextJoinSeq"`
	Version         int64            `json:"version"`
	CreatedBy       int64            `json:"createdBy"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// Duration is the personal attempt window length.
func (c *Contest) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Participant returns the participant for userID, or nil.
func (c *Contest) Participant(userID int64) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

func (c *Contest) Problem(problemID int64) (ContestProblem, bool) {
	for _, p := range c.Problems {
		if p.ProblemID == problemID {
			return p, true
		}
	}
	return ContestProblem{}, false
}

// Clone returns a deep copy so rules can be applied without touching the loaded snapshot.
func (c *Contest) Clone() *Contest {
	out := *c
	out.Topics = append([]string(nil), c.Topics...)
	out.Problems = append([]ContestProblem(nil), c.Problems...)
	out.PrizePool.Distribution = append([]PrizeTier(nil), c.PrizePool.Distribution...)
	out.Payouts = append([]Payout(nil), c.Payouts...)
	out.Participants = make([]Participant, len(c.Participants))
	for i, p := range c.Participants {
		p.Solved = append([]SolvedEntry(nil), p.Solved...)
		if p.StartTime != nil {
			t := *p.StartTime
			p.StartTime = &t
		}
		if p.EndTime != nil {
			t := *p.EndTime
			p.EndTime = &t
		}
		out.Participants[i] = p
	}
	return &out
}

// ListFilter narrows contest listings.
type ListFilter struct {
	Status Status
	Type   Type
	Limit  int
	Offset int
}
