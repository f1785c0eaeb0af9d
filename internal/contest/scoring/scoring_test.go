package scoring

import (
	"reflect"
	"testing"
	"time"

	"codearena/internal/contest/model"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func participant(userID, seq, score int64, solvedAt ...time.Time) model.Participant {
	p := model.Participant{UserID: userID, JoinSeq: seq, Score: score}
	for i, at := range solvedAt {
		p.Solved = append(p.Solved, model.SolvedEntry{ProblemID: int64(i + 1), SolvedAt: at})
	}
	return p
}

func TestRecomputeLeaderboardOrder(t *testing.T) {
	participants := []model.Participant{
		participant(1, 1, 100, base.Add(30*time.Minute)),
		participant(2, 2, 300, base.Add(10*time.Minute), base.Add(50*time.Minute)),
		participant(3, 3, 100, base.Add(20*time.Minute)),
		participant(4, 4, 0),
	}
	standings := RecomputeLeaderboard(participants)

	var order []int64
	for i, s := range standings {
		if s.Rank != i+1 {
			t.Fatalf("expected rank %d, got %d", i+1, s.Rank)
		}
		order = append(order, s.UserID)
	}
	if want := []int64{2, 3, 1, 4}; !reflect.DeepEqual(order, want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	if standings[0].SolvedCount != 2 || !standings[0].LastSolveAt.Equal(base.Add(50*time.Minute)) {
		t.Fatalf("unexpected leader: %+v", standings[0])
	}
	if standings[3].LastSolveAt != nil {
		t.Fatalf("expected no last solve for user 4")
	}
	if participants[0].Rank != 0 {
		t.Fatalf("input was modified")
	}
}

func TestRecomputeLeaderboardTieByJoinOrder(t *testing.T) {
	at := base.Add(15 * time.Minute)
	participants := []model.Participant{
		participant(7, 2, 100, at),
		participant(8, 1, 100, at),
	}
	standings := RecomputeLeaderboard(participants)
	if standings[0].UserID != 8 || standings[0].Rank != 1 {
		t.Fatalf("expected user 8 first, got %+v", standings[0])
	}
	if standings[1].UserID != 7 || standings[1].Rank != 2 {
		t.Fatalf("expected user 7 second, got %+v", standings[1])
	}
}

func TestApplyIdempotent(t *testing.T) {
	c := &model.Contest{Participants: []model.Participant{
		participant(1, 1, 100, base.Add(time.Minute)),
		participant(2, 2, 200, base.Add(2*time.Minute)),
		participant(3, 3, 100, base.Add(time.Minute)),
	}}
	first := Apply(c)
	ranks := map[int64]int{}
	for _, p := range c.Participants {
		ranks[p.UserID] = p.Rank
	}
	second := Apply(c)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("standings differ:\n%+v\n%+v", first, second)
	}
	for _, p := range c.Participants {
		if ranks[p.UserID] != p.Rank {
			t.Fatalf("rank of %d changed from %d to %d", p.UserID, ranks[p.UserID], p.Rank)
		}
	}
	if ranks[2] != 1 || ranks[1] != 2 || ranks[3] != 3 {
		t.Fatalf("unexpected ranks: %v", ranks)
	}
}

func TestComputeStats(t *testing.T) {
	if got := ComputeStats(nil); got != (model.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", got)
	}
	got := ComputeStats([]model.Participant{
		participant(1, 1, 300, base),
		participant(2, 2, 0),
		participant(3, 3, 100, base),
		participant(4, 4, 0),
	})
	want := model.Stats{TotalParticipants: 4, AverageScore: 100, CompletionRate: 50}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestDistributePrizes(t *testing.T) {
	c := &model.Contest{
		PrizePool: model.PrizePool{
			Coins: 1000,
			Distribution: []model.PrizeTier{
				{Rank: 1, Coins: 500},
				{Rank: 2, Coins: 200},
			},
		},
		Participants: []model.Participant{
			participant(1, 1, 300, base),
			participant(2, 2, 200, base),
			participant(3, 3, 100, base),
		},
	}
	Apply(c)

	payouts := DistributePrizes(c)
	want := []model.Payout{
		{Rank: 1, UserID: 1, Coins: 500},
		{Rank: 2, UserID: 2, Coins: 200},
	}
	if !reflect.DeepEqual(payouts, want) {
		t.Fatalf("expected %+v, got %+v", want, payouts)
	}
	if again := DistributePrizes(c); !reflect.DeepEqual(again, payouts) {
		t.Fatalf("second distribution differs: %+v", again)
	}
}

func TestDistributePrizesPercentageAndEmptyPool(t *testing.T) {
	c := &model.Contest{
		PrizePool: model.PrizePool{
			Coins:        999,
			Distribution: []model.PrizeTier{{Rank: 1, Percentage: 50}},
		},
		Participants: []model.Participant{participant(1, 1, 10, base)},
	}
	Apply(c)
	payouts := DistributePrizes(c)
	if len(payouts) != 1 || payouts[0].Coins != 499 {
		t.Fatalf("unexpected payouts: %+v", payouts)
	}

	c.PrizePool.Coins = 0
	if payouts := DistributePrizes(c); payouts != nil {
		t.Fatalf("expected no payouts, got %+v", payouts)
	}
}
