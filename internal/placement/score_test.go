package placement

import (
	"testing"

	"distfs/internal/model"
)

func TestRank_LocalityPrefersNearest(t *testing.T) {
	client := model.Location{X: 5, Y: 5}
	candidates := []Candidate{
		{ID: "a", Address: "a:1", Location: model.Location{X: 0, Y: 0}, Free: 1 << 30, Limit: 1 << 30},
		{ID: "b", Address: "b:1", Location: model.Location{X: 100, Y: 0}, Free: 1 << 30, Limit: 1 << 30},
		{ID: "c", Address: "c:1", Location: model.Location{X: 0, Y: 100}, Free: 1 << 30, Limit: 1 << 30},
	}

	ranked := Rank(client, candidates, 1<<20, DefaultWeights)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].ID != "a" {
		t.Fatalf("expected nearest server 'a' first, got %q", ranked[0].ID)
	}
}

func TestRank_SpacePressureOverridesLocality(t *testing.T) {
	client := model.Location{X: 5, Y: 5}
	limit := int64(1 << 30)
	candidates := []Candidate{
		// 'a' is nearest but 90% full.
		{ID: "a", Address: "a:1", Location: model.Location{X: 0, Y: 0}, Free: limit / 10, Limit: limit},
		{ID: "b", Address: "b:1", Location: model.Location{X: 100, Y: 0}, Free: limit, Limit: limit},
		{ID: "c", Address: "c:1", Location: model.Location{X: 0, Y: 100}, Free: limit, Limit: limit},
	}

	ranked := Rank(client, candidates, 1<<20, DefaultWeights)
	if ranked[0].ID == "a" {
		t.Fatalf("expected space pressure to demote 'a', but it ranked first")
	}
}

func TestRank_ExcludesInsufficientSpace(t *testing.T) {
	client := model.Location{}
	candidates := []Candidate{
		{ID: "a", Address: "a:1", Free: 10, Limit: 100},
		{ID: "b", Address: "b:1", Free: 1 << 30, Limit: 1 << 30},
	}
	ranked := Rank(client, candidates, 1<<20, DefaultWeights)
	if len(ranked) != 1 || ranked[0].ID != "b" {
		t.Fatalf("expected only 'b' to be eligible, got %+v", ranked)
	}
}

func TestRank_TiesBreakByID(t *testing.T) {
	client := model.Location{}
	candidates := []Candidate{
		{ID: "z", Address: "z:1", Location: model.Location{X: 1, Y: 0}, Free: 100, Limit: 100},
		{ID: "a", Address: "a:1", Location: model.Location{X: 1, Y: 0}, Free: 100, Limit: 100},
	}
	ranked := Rank(client, candidates, 1, DefaultWeights)
	if ranked[0].ID != "a" {
		t.Fatalf("expected stable tie-break on ID, got %q first", ranked[0].ID)
	}
}

func TestRank_AllZeroDistanceAvoidsDivideByZero(t *testing.T) {
	client := model.Location{X: 3, Y: 3}
	candidates := []Candidate{
		{ID: "a", Address: "a:1", Location: model.Location{X: 3, Y: 3}, Free: 100, Limit: 100},
	}
	ranked := Rank(client, candidates, 1, DefaultWeights)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(ranked))
	}
}

func TestTopK(t *testing.T) {
	ranked := []Ranked{{Candidate: Candidate{ID: "a"}}, {Candidate: Candidate{ID: "b"}}}
	if len(TopK(ranked, 1)) != 1 {
		t.Fatal("expected TopK(1) to return 1 item")
	}
	if len(TopK(ranked, 5)) != 2 {
		t.Fatal("expected TopK(5) to return all items when k exceeds length")
	}
}
