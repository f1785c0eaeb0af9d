// Package scoring ranks contest participants and computes payouts.
package scoring

import (
	"math"
	"sort"

	"codearena/internal/contest/model"
)

// RecomputeLeaderboard orders participants by score desc, last solve asc, join order asc.
// The input is left untouched.
func RecomputeLeaderboard(participants []model.Participant) []model.Standing {
	type row struct {
		p    *model.Participant
		last int64
	}
	rows := make([]row, len(participants))
	for i := range participants {
		p := &participants[i]
		last := p.LastSolveAt()
		var nanos int64
		if !last.IsZero() {
			nanos = last.UnixNano()
		}
		rows[i] = row{p: p, last: nanos}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.p.Score != b.p.Score {
			return a.p.Score > b.p.Score
		}
		if a.last != b.last {
			return a.last < b.last
		}
		return a.p.JoinSeq < b.p.JoinSeq
	})

	standings := make([]model.Standing, len(rows))
	for i, r := range rows {
		s := model.Standing{
			Rank:        i + 1,
			UserID:      r.p.UserID,
			Score:       r.p.Score,
			SolvedCount: len(r.p.Solved),
		}
		if r.last != 0 {
			last := r.p.LastSolveAt()
			s.LastSolveAt = &last
		}
		standings[i] = s
	}
	return standings
}

// Apply writes ranks and stats onto c.
func Apply(c *model.Contest) []model.Standing {
	standings := RecomputeLeaderboard(c.Participants)
	ranks := make(map[int64]int, len(standings))
	for _, s := range standings {
		ranks[s.UserID] = s.Rank
	}
	participants := make([]model.Participant, len(c.Participants))
	copy(participants, c.Participants)
	for i := range participants {
		participants[i].Rank = ranks[participants[i].UserID]
	}
	c.Participants = participants
	c.Stats = ComputeStats(participants)
	return standings
}

func ComputeStats(participants []model.Participant) model.Stats {
	n := len(participants)
	if n == 0 {
		return model.Stats{}
	}
	var total int64
	completed := 0
	for _, p := range participants {
		total += p.Score
		if len(p.Solved) > 0 {
			completed++
		}
	}
	return model.Stats{
		TotalParticipants: n,
		AverageScore:      float64(total) / float64(n),
		CompletionRate:    float64(completed) / float64(n) * 100,
	}
}

// DistributePrizes computes payouts from the current ranks. It has no side effects,
// so calling it again yields the same payouts.
func DistributePrizes(c *model.Contest) []model.Payout {
	pool := c.PrizePool
	if pool.Coins <= 0 || len(pool.Distribution) == 0 {
		return nil
	}
	var payouts []model.Payout
	for _, tier := range pool.Distribution {
		coins := tier.Coins
		if coins == 0 {
			coins = int64(math.Floor(float64(pool.Coins) * tier.Percentage / 100))
		}
		if coins <= 0 {
			continue
		}
		for _, p := range c.Participants {
			if p.Rank == tier.Rank {
				payouts = append(payouts, model.Payout{Rank: tier.Rank, UserID: p.UserID, Coins: coins})
			}
		}
	}
	return payouts
}
