package model

import (
	"encoding/json"
	"testing"

	judgemodel "codearena/internal/judge/model"
)

func TestAcceptanceRate(t *testing.T) {
	p := &Problem{}
	if p.AcceptanceRate() != 0 {
		t.Fatalf("expected zero rate without submissions")
	}
	p.TotalSubmissions, p.AcceptedSubmissions = 4, 1
	if p.AcceptanceRate() != 0.25 {
		t.Fatalf("unexpected rate: %v", p.AcceptanceRate())
	}
}

func TestVisibleCases(t *testing.T) {
	p := &Problem{TestCases: []judgemodel.TestCase{
		{Input: json.RawMessage(`"1"`), Expected: json.RawMessage(`"1"`)},
		{Input: json.RawMessage(`"2"`), Expected: json.RawMessage(`"2"`), IsHidden: true},
		{Input: json.RawMessage(`"3"`), Expected: json.RawMessage(`"3"`)},
	}}
	visible := p.VisibleCases()
	if len(visible) != 2 || string(visible[1].Input) != `"3"` {
		t.Fatalf("unexpected visible cases: %+v", visible)
	}
}

func TestDifficultyPoints(t *testing.T) {
	if DifficultyEasy.Points() != 10 || DifficultyMedium.Points() != 20 || DifficultyHard.Points() != 30 {
		t.Fatalf("unexpected difficulty points")
	}
	if Difficulty("extreme").Valid() {
		t.Fatalf("unexpected valid difficulty")
	}
}
