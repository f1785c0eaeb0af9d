// Package model defines the problem catalogue entities.
package model

import (
	"time"

	judgemodel "codearena/internal/judge/model"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Points is the global leaderboard credit for a first solve.
func (d Difficulty) Points() int64 {
	switch d {
	case DifficultyMedium:
		return 20
	case DifficultyHard:
		return 30
	default:
		return 10
	}
}

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Example is a display-only sample shown with the statement.
type Example struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

type Problem struct {
	ID                  int64                 `json:"id"`
	Title               string                `json:"title"`
	Slug                string                `json:"slug"`
	Description         string                `json:"description"`
	Difficulty          Difficulty            `json:"difficulty"`
	Topics              []string              `json:"topics"`
	Constraints         []string              `json:"constraints"`
	Examples            []Example             `json:"examples"`
	TestCases           []judgemodel.TestCase `json:"testCases"`
	IsActive            bool                  `json:"isActive"`
	TotalSubmissions    int64                 `json:"totalSubmissions"`
	AcceptedSubmissions int64                 `json:"acceptedSubmissions"`
	CreatedBy           int64                 `json:"createdBy"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// AcceptanceRate is accepted/total, or 0 before the first submission.
func (p *Problem) AcceptanceRate() float64 {
	if p.TotalSubmissions == 0 {
		return 0
	}
	return float64(p.AcceptedSubmissions) / float64(p.TotalSubmissions)
}

// VisibleCases returns the cases shown in run mode.
func (p *Problem) VisibleCases() []judgemodel.TestCase {
	out := make([]judgemodel.TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if !tc.IsHidden {
			out = append(out, tc)
		}
	}
	return out
}

// Stats is the public statistics block.
type Stats struct {
	TotalSubmissions    int64   `json:"totalSubmissions"`
	AcceptedSubmissions int64   `json:"acceptedSubmissions"`
	AcceptanceRate      float64 `json:"acceptanceRate"`
}

func (p *Problem) Stats() Stats {
	return Stats{
		TotalSubmissions:    p.TotalSubmissions,
		AcceptedSubmissions: p.AcceptedSubmissions,
		AcceptanceRate:      p.AcceptanceRate(),
	}
}

// ListFilter narrows problem listings.
type ListFilter struct {
	Difficulty Difficulty
	Limit      int
	Offset     int
}
